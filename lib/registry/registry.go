// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package registry talks to the membership store shared with the PiConga
// web service, the single source of truth for which member belongs to
// which conga. The relay looks memberships up on HELLO and removes them on
// BYE; creating rows is the web service's business, though AddMembership
// exists for provisioning and tests.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by LookupConga for a member with no membership
// row.
var ErrNotFound = errors.New("member has no conga membership")

type setupFunc func(db *sql.DB) error
type compileFunc func(db *sql.DB) (map[string]*sql.Stmt, error)

var (
	setupFuncs   = make(map[string]setupFunc)
	compileFuncs = make(map[string]compileFunc)
)

func register(name string, setup setupFunc, compile compileFunc) {
	setupFuncs[name] = setup
	compileFuncs[name] = compile
}

// Store is the membership view the relay works against.
type Store interface {
	// LookupConga returns the id of the conga the member belongs to, or
	// ErrNotFound.
	LookupConga(memberID int64) (int64, error)
	// DeleteMembership removes the member's row. Removing an absent row is
	// not an error.
	DeleteMembership(memberID int64) error
	// AddMembership inserts a membership row.
	AddMembership(memberID, congaID int64) error
	Close() error
}

// Open connects to the registry using the named backend and its DSN,
// creating the schema if it does not exist. The backend name doubles as
// the database/sql driver name.
func Open(backend, dsn string) (Store, error) {
	setup, ok := setupFuncs[backend]
	if !ok {
		return nil, fmt.Errorf("unsupported registry backend %q", backend)
	}

	db, err := sql.Open(backend, dsn)
	if err != nil {
		return nil, err
	}
	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}
	stmts, err := compileFuncs[backend](db)
	if err != nil {
		db.Close()
		return nil, err
	}

	l.Infof("Using %s registry at %s", backend, dsn)
	return &sqlStore{db: db, stmts: stmts}, nil
}

type sqlStore struct {
	db    *sql.DB
	stmts map[string]*sql.Stmt
}

func (s *sqlStore) LookupConga(memberID int64) (int64, error) {
	var congaID int64
	err := s.stmts["selectMembership"].QueryRow(memberID).Scan(&congaID)
	if errors.Is(err, sql.ErrNoRows) {
		registryOperations.WithLabelValues(opLookup, resultNotFound).Inc()
		return 0, fmt.Errorf("%w: member %d", ErrNotFound, memberID)
	}
	if err != nil {
		registryOperations.WithLabelValues(opLookup, resultError).Inc()
		return 0, err
	}
	registryOperations.WithLabelValues(opLookup, resultSuccess).Inc()
	return congaID, nil
}

func (s *sqlStore) DeleteMembership(memberID int64) error {
	if _, err := s.stmts["deleteMembership"].Exec(memberID); err != nil {
		registryOperations.WithLabelValues(opDelete, resultError).Inc()
		return err
	}
	registryOperations.WithLabelValues(opDelete, resultSuccess).Inc()
	return nil
}

func (s *sqlStore) AddMembership(memberID, congaID int64) error {
	if _, err := s.stmts["insertMembership"].Exec(memberID, congaID); err != nil {
		registryOperations.WithLabelValues(opInsert, resultError).Inc()
		return err
	}
	registryOperations.WithLabelValues(opInsert, resultSuccess).Inc()
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func compile(db *sql.DB, stmts map[string]string) (map[string]*sql.Stmt, error) {
	res := make(map[string]*sql.Stmt, len(stmts))
	for key, stmt := range stmts {
		prep, err := db.Prepare(stmt)
		if err != nil {
			l.Warnln("Failed to compile", stmt)
			return nil, err
		}
		res[key] = prep
	}
	return res, nil
}
