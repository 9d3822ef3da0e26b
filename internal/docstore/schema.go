package docstore

// Each collection is a key column plus one JSON payload column. Indexes over
// derived payload fields are additive and safe to re-run on every open.
//
// users keys are AUTOINCREMENT so a deleted account's id is never handed out
// again; posts keep author_id after their author is gone.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY AUTOINCREMENT,
	doc     TEXT NOT NULL CHECK (json_valid(doc))
);

CREATE TABLE IF NOT EXISTS posts (
	post_id TEXT PRIMARY KEY,
	doc     TEXT NOT NULL CHECK (json_valid(doc))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(json_extract(doc, '$.username'));
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(json_extract(doc, '$.created_at'));
CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(json_extract(doc, '$.author_id'));
`

const dropSQL = `
DROP TABLE IF EXISTS users;
DROP TABLE IF EXISTS posts;
`
