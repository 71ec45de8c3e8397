package sqlinline

const QSelectIntegrationToken = `--sql 7446a8da-4447-4fad-abed-1345580ec3ef
select token
from integration_tokens
where provider = $1::text
  and coalesce((properties->>'disabled')::boolean, false) = false
limit 1;
`

const QUpsertIntegrationToken = `--sql 1f38eee6-fd8e-481c-8c2f-13bd46e34750
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
