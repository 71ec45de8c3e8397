package sqlinline

const QInsertHistory = `--sql b50d05d1-5184-46c9-b649-2d2932252cad
insert into generation_history (
    id,
    user_id,
    user_email,
    source_image_path,
    result_image_path,
    enhancement_label,
    category_label,
    prompt_used,
    created_at
)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, $7::text, $8::text, $9::timestamptz);
`

const QSelectHistoryByUser = `--sql ab6f85a0-ec89-482d-a9b6-d26629192ddf
select id::text, user_id, user_email, source_image_path, result_image_path,
       enhancement_label, category_label, prompt_used, created_at
from generation_history
where user_id = $1::text
order by created_at desc
limit $2::int;
`
