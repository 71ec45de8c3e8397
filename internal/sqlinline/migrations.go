package sqlinline

const QCreateSchemaMigrations = `--sql 6a14f156-124a-4875-b1f5-057eee1b2603
create table if not exists schema_migrations (
    version    text primary key,
    applied_at timestamptz not null default now()
);
`

const QSelectSchemaMigrations = `--sql 15d6aea5-b2b8-4e45-a623-046c3429a56d
select version
from schema_migrations
order by version asc;
`

const QInsertSchemaMigration = `--sql 7b2025b5-7863-4282-9a10-be54f656fd76
insert into schema_migrations (version, applied_at)
values ($1, now());
`
