package inmemdb

import (
	"sync"

	"github.com/twahidin/project-lumos/core/session"
	"github.com/twahidin/project-lumos/core/user"
	"github.com/twahidin/project-lumos/core/whodoc"
)

type (
	// DB keeps every table in memory; it is meant for tests and local runs.
	DB struct {
		user    *userTable
		doc     *docTable
		session *sessionTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	docTable struct {
		table map[string]*whodoc.Doc
		mutex sync.RWMutex
	}

	sessionTable struct {
		table map[string]session.Session
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		doc:     &docTable{table: make(map[string]*whodoc.Doc)},
		session: &sessionTable{table: make(map[string]session.Session)},
	}
}
