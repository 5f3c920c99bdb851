package model

// BadgeCatalog индексирует значки по set_id и затем по id версии.
type BadgeCatalog map[string]map[string]Badge

// Lookup ищет значок по паре set/version.
func (c BadgeCatalog) Lookup(setID, version string) (Badge, bool) {
	versions, ok := c[setID]
	if !ok {
		return Badge{}, false
	}
	b, ok := versions[version]
	return b, ok
}

// Add кладёт значок в каталог, заменяя существующую запись.
func (c BadgeCatalog) Add(b Badge) {
	versions, ok := c[b.SetID]
	if !ok {
		versions = make(map[string]Badge)
		c[b.SetID] = versions
	}
	versions[b.Version] = b
}

// Len возвращает общее число версий значков.
func (c BadgeCatalog) Len() int {
	n := 0
	for _, versions := range c {
		n += len(versions)
	}
	return n
}

// MergeCatalogs объединяет глобальный и канальный каталоги; записи канала важнее.
func MergeCatalogs(global, channel BadgeCatalog) BadgeCatalog {
	out := make(BadgeCatalog, len(global)+len(channel))
	for _, src := range []BadgeCatalog{global, channel} {
		for _, versions := range src {
			for _, b := range versions {
				out.Add(b)
			}
		}
	}
	return out
}
