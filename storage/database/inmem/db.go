// Package inmemdb implements every repository in memory. It backs tests and local runs without Postgres.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/abtest"
	"github.com/pqasys/langcsebkg5-sub007/core/alert"
	"github.com/pqasys/langcsebkg5-sub007/core/notification"
	"github.com/pqasys/langcsebkg5-sub007/core/quiz"
	"github.com/pqasys/langcsebkg5-sub007/core/subscription"
	"github.com/pqasys/langcsebkg5-sub007/core/tag"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

// DB holds all tables behind a single lock.
type DB struct {
	mu sync.RWMutex

	tenants       map[string]tenant.Tenant
	users         map[string]user.User
	tags          map[string]tag.Tag
	quizzes       map[string]quiz.Quiz
	attempts      map[string]quiz.Attempt
	abtests       map[string]abtest.Test
	sessions      map[string]abtest.Session
	rules         map[string]alert.Rule
	alerts        map[string]alert.Alert
	preferences   map[string]map[string]notification.Preference // {userID: {category: Preference}}
	notifications map[string]notification.Notification
	plans         map[string]subscription.Plan
	subscriptions map[string]subscription.Subscription
	payments      map[string]subscription.Payment
	settings      *subscription.ApprovalSettings
}

func Open() *DB {
	return &DB{
		tenants:       make(map[string]tenant.Tenant),
		users:         make(map[string]user.User),
		tags:          make(map[string]tag.Tag),
		quizzes:       make(map[string]quiz.Quiz),
		attempts:      make(map[string]quiz.Attempt),
		abtests:       make(map[string]abtest.Test),
		sessions:      make(map[string]abtest.Session),
		rules:         make(map[string]alert.Rule),
		alerts:        make(map[string]alert.Alert),
		preferences:   make(map[string]map[string]notification.Preference),
		notifications: make(map[string]notification.Notification),
		plans:         make(map[string]subscription.Plan),
		subscriptions: make(map[string]subscription.Subscription),
		payments:      make(map[string]subscription.Payment),
	}
}

func newID() string {
	return uuid.New().String()
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// fieldGetter returns the value of an orderable field.
type fieldGetter[T any] map[string]func(T) interface{}

// order sorts items by the given orderings, falling back to `fallback` when none applies.
func order[T any](items []T, ordering []core.DBOrdering, fields fieldGetter[T], fallback ...core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = fallback
	}
	if len(ordering) == 0 {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			get, ok := fields[ord.Field]
			if !ok {
				continue
			}
			c := compare(get(items[i]), get(items[j]))
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(x), strings.ToLower(b.(string)))
	case int:
		return cmpOrdered(x, b.(int))
	case float64:
		return cmpOrdered(x, b.(float64))
	case bool:
		return cmpOrdered(boolInt(x), boolInt(b.(bool)))
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
	case *time.Time:
		y := b.(*time.Time)
		var tx, ty time.Time
		if x != nil {
			tx = *x
		}
		if y != nil {
			ty = *y
		}
		return compare(tx, ty)
	}
	return 0
}

func cmpOrdered[T int | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
