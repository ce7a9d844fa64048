// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package registry

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func init() {
	register("sqlite3", sqliteSetup, sqliteCompile)
}

func sqliteSetup(db *sql.DB) error {
	// The registry web service and the relay may share the file; a second
	// writer must not trip over a locked database.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return err
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS conga_congamember (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL,
		conga_id INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS CongaMemberMemberIDIndex ON conga_congamember (member_id)`)
	return err
}

func sqliteCompile(db *sql.DB) (map[string]*sql.Stmt, error) {
	return compile(db, map[string]string{
		"selectMembership": "SELECT conga_id FROM conga_congamember WHERE member_id = ? ORDER BY id LIMIT 1",
		"deleteMembership": "DELETE FROM conga_congamember WHERE member_id = ?",
		"insertMembership": "INSERT INTO conga_congamember (member_id, conga_id) VALUES (?, ?)",
	})
}
