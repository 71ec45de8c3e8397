package sqlinline

const QSelectActiveTemplatesByIDs = `--sql acb28246-6d82-4ce0-b4c8-e43ac1439edd
select enhancement_id, coalesce(title, ''), prompt_template, coalesce(category, ''), is_active
from enhancement_templates
where enhancement_id = any($1::text[])
  and is_active;
`

const QSelectCategoryPrompt = `--sql e9d058e1-b67b-402e-903d-d5243158aece
select category_label, system_preamble
from category_prompts
where lower(category_label) = lower($1::text)
limit 1;
`

const QListActiveTemplates = `--sql 5c960793-046d-4395-805c-509bbb281b4c
select enhancement_id, coalesce(title, ''), prompt_template, coalesce(category, ''), is_active
from enhancement_templates
where is_active
  and ($1::text = '' or category is null or lower(category) = lower($1::text))
order by title asc, enhancement_id asc;
`
