package sqlinline

const QSelectMonthlyUsage = `--sql 3b957f67-09db-45c3-b9db-2b474d3b5bcf
select coalesce((
    select used
    from generation_usage
    where email = $1::text
      and period = $2::text
), 0);
`

const QSelectMonthlyLimit = `--sql b5437e19-a26b-4894-ad6e-54e57cebe29a
select monthly_limit
from quota_limits
where email = $1::text
limit 1;
`

// QIncrementMonthlyUsage is a single upsert so concurrent generations for the
// same email can never undercount.
const QIncrementMonthlyUsage = `--sql ed088ab4-5c16-4728-b40f-dad130fb37aa
insert into generation_usage (email, period, used, updated_at)
values ($1::text, $2::text, 1, now())
on conflict (email, period) do update set
    used = generation_usage.used + 1,
    updated_at = now()
returning used;
`

const QUpsertMonthlyLimit = `--sql 714b3ee3-c54f-4350-9fb8-8d7d268b651f
insert into quota_limits (email, monthly_limit, updated_at)
values ($1::text, $2::int, now())
on conflict (email) do update set
    monthly_limit = excluded.monthly_limit,
    updated_at = now();
`

const QResetMonthlyUsage = `--sql 945557bd-d678-4529-b6c1-5639afbe9734
update generation_usage
set used = 0, updated_at = now()
where email = $1::text
  and period = $2::text;
`
