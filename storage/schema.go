package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
create table if not exists session_events (
  id          bigserial primary key,
  incarnation text        not null,
  channel     text        not null,
  kind        text        not null,
  state       text        not null default '',
  detail      text        not null default '',
  tags        jsonb,
  event_at    timestamptz not null
);
create index if not exists session_events_incarnation_idx on session_events (incarnation, event_at);`

// EnsureSchema создаёт таблицу журнала, если её нет.
func EnsureSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}
