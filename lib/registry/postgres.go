// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package registry

import (
	"database/sql"

	_ "github.com/lib/pq"
)

func init() {
	register("postgres", postgresSetup, postgresCompile)
}

func postgresSetup(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS conga_congamember (
		id SERIAL PRIMARY KEY,
		member_id BIGINT NOT NULL,
		conga_id BIGINT NOT NULL
	)`)
	if err != nil {
		return err
	}

	row := db.QueryRow(`SELECT 'CongaMemberMemberIDIndex'::regclass`)
	if err := row.Scan(nil); err != nil {
		_, err = db.Exec(`CREATE INDEX CongaMemberMemberIDIndex ON conga_congamember (member_id)`)
		return err
	}

	return nil
}

func postgresCompile(db *sql.DB) (map[string]*sql.Stmt, error) {
	return compile(db, map[string]string{
		"selectMembership": "SELECT conga_id FROM conga_congamember WHERE member_id = $1 ORDER BY id LIMIT 1",
		"deleteMembership": "DELETE FROM conga_congamember WHERE member_id = $1",
		"insertMembership": "INSERT INTO conga_congamember (member_id, conga_id) VALUES ($1, $2)",
	})
}
