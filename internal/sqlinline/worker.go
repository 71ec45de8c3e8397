package sqlinline

const QInsertGenerationJob = `--sql 87d4a034-4b42-4129-877b-8a0bf5f285e6
insert into generation_jobs (
    id, task_id, user_id, user_email, source_image, prompt,
    category_label, enhancement_label, state, lease_until, created_at, updated_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text,
        $7::text, $8::text, 'POLLING', $9::timestamptz, now(), now())
on conflict (task_id) do nothing;
`

// QMarkJobSucceeded only matches a row that has not succeeded yet, which makes
// the caller that observes RETURNING the single owner of the bookkeeping.
const QMarkJobSucceeded = `--sql cce6bdc3-6ce9-4c5c-b921-b8809aba77ad
update generation_jobs
set state = 'SUCCEEDED', result_url = $2::text, lease_until = null, updated_at = now()
where task_id = $1::text
  and state <> 'SUCCEEDED'
returning id;
`

const QMarkJobFinished = `--sql 2f4067cf-331b-45f3-9516-cb325c9d0fbb
update generation_jobs
set state = $2::text, failure = $3::text, lease_until = null, updated_at = now()
where task_id = $1::text
  and state = 'POLLING';
`

// QRenewJobLease extends the lease of a job that is still being polled.
const QRenewJobLease = `--sql e439701e-323e-410f-b8c6-5ab2f1d6c8d3
update generation_jobs
set lease_until = now() + make_interval(secs => $2::int), updated_at = now()
where task_id = $1::text
  and state = 'POLLING';
`

const QSelectJobByTaskID = `--sql c34c8585-aa38-45de-87d9-e47af61730dd
select id::text, task_id, user_id, user_email, source_image, prompt, category_label,
       enhancement_label, state, coalesce(result_url, ''), coalesce(failure, ''),
       coalesce(lease_until, 'epoch'::timestamptz), created_at, updated_at
from generation_jobs
where task_id = $1::text
limit 1;
`

const QClaimStaleJobs = `--sql 8c453f73-cf69-49dd-a636-9b1b5eefa56f
with stale as (
    select id
    from generation_jobs
    where state = 'POLLING'
      and (lease_until is null or lease_until < now())
    order by created_at asc
    for update skip locked
    limit $2::int
)
update generation_jobs j
set lease_until = now() + make_interval(secs => $1::int), updated_at = now()
from stale
where j.id = stale.id
returning j.id::text, j.task_id, j.user_id, j.user_email, j.source_image, j.prompt,
          j.category_label, j.enhancement_label, j.state, j.lease_until, j.created_at;
`
