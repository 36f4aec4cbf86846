// Package repo runs Cypher statements over Neo4j sessions behind small
// interfaces that tests can fake.
package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a Neo4j result set used here.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner is the part of a Neo4j session used here.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// Sessions opens a session per unit of work.
type Sessions func(ctx context.Context) Runner

// Statement is one parameterised Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// DriverSessions opens write sessions on database. An empty database means
// the server default.
func DriverSessions(driver neo4j.DriverWithContext, database string) Sessions {
	return func(ctx context.Context) Runner {
		return &sessionAdapter{sess: driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeWrite,
			DatabaseName: database,
		})}
	}
}

// Exec runs statements in order on one session and drains each result.
// It stops at the first failure.
func Exec(ctx context.Context, open Sessions, stmts ...Statement) error {
	sess := open(ctx)
	defer sess.Close(ctx)

	for i, st := range stmts {
		res, err := sess.Run(ctx, st.Cypher, st.Params)
		if err != nil {
			return fmt.Errorf("repo: statement %d: %w", i, err)
		}
		for res.Next(ctx) {
		}
		if err := res.Err(); err != nil {
			return fmt.Errorf("repo: statement %d: %w", i, err)
		}
	}
	return nil
}

// Query runs one statement and decodes every record.
func Query[T any](ctx context.Context, open Sessions, st Statement, decode func(*neo4j.Record) (T, error)) ([]T, error) {
	sess := open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, st.Cypher, st.Params)
	if err != nil {
		return nil, fmt.Errorf("repo: query: %w", err)
	}
	var out []T
	for res.Next(ctx) {
		v, err := decode(res.Record())
		if err != nil {
			return nil, fmt.Errorf("repo: decode: %w", err)
		}
		out = append(out, v)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: query: %w", err)
	}
	return out, nil
}
