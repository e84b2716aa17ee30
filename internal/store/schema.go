package store

const Schema = `
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	class TEXT NOT NULL DEFAULT '',
	exchange TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	tradeable INTEGER NOT NULL DEFAULT 0,
	marginable INTEGER NOT NULL DEFAULT 0,
	shortable INTEGER NOT NULL DEFAULT 0,
	easy_to_borrow INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_assets_symbol ON assets(symbol);

CREATE TABLE IF NOT EXISTS strategies (
	name TEXT PRIMARY KEY,
	entry TEXT NOT NULL,
	exit_gain TEXT NOT NULL,
	exit_loss TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS instructions (
	active INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	frequency TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS daily (
	asset_id TEXT NOT NULL,
	date DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	sma7 REAL,
	sma20 REAL,
	sma50 REAL,
	ema7 REAL,
	ema20 REAL,
	rsi REAL,
	PRIMARY KEY (asset_id, date)
);

CREATE TABLE IF NOT EXISTS validity (
	item TEXT PRIMARY KEY,
	updated DATETIME NOT NULL
);
`
