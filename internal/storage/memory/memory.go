// Package memory is an in-process storage.Store used by tests and by the
// memory backend. Units of work are serialized by a mutex and rolled back by
// restoring a snapshot taken when they start.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"finapp/internal/core"
	"finapp/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

// WithinTx implements storage.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, s.state); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

type state struct {
	nextID       int64
	users        map[int64]core.User
	accounts     map[int64]core.Account
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	goals        map[int64]core.Goal
	adjustments  map[int64]core.Adjustment
}

func newState() *state {
	return &state{
		users:        make(map[int64]core.User),
		accounts:     make(map[int64]core.Account),
		categories:   make(map[int64]core.Category),
		transactions: make(map[int64]core.Transaction),
		goals:        make(map[int64]core.Goal),
		adjustments:  make(map[int64]core.Adjustment),
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:       s.nextID,
		users:        cloneMap(s.users),
		accounts:     cloneMap(s.accounts),
		categories:   cloneMap(s.categories),
		transactions: make(map[int64]core.Transaction, len(s.transactions)),
		goals:        cloneMap(s.goals),
		adjustments:  cloneMap(s.adjustments),
	}
	for id, tx := range s.transactions {
		c.transactions[id] = copyTx(tx)
	}
	return c
}

func cloneMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// copyTx detaches the posting pointer so callers cannot mutate stored state.
func copyTx(tx core.Transaction) core.Transaction {
	if tx.Posting != nil {
		p := *tx.Posting
		tx.Posting = &p
	}
	return tx
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) CreateUser(_ context.Context, u core.User) (core.User, error) {
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return core.User{}, core.Invalid("username", core.ErrDuplicateUsername)
		}
	}
	u.ID = core.Persisted(s.id())
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID.Int64()] = u
	return u, nil
}

func (s *state) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.NotFound("user", id)
	}
	return u, nil
}

func (s *state) DeleteUser(_ context.Context, id int64) error {
	if _, ok := s.users[id]; !ok {
		return core.NotFound("user", id)
	}
	for aid, a := range s.accounts {
		if a.UserID == id {
			s.deleteAccount(aid)
		}
	}
	for cid, c := range s.categories {
		if c.UserID == id {
			s.deleteCategory(cid)
		}
	}
	for tid, tx := range s.transactions {
		if tx.UserID == id {
			s.deleteTransaction(tid)
		}
	}
	for gid, g := range s.goals {
		if g.UserID == id {
			delete(s.goals, gid)
		}
	}
	delete(s.users, id)
	return nil
}

func (s *state) CreateAccount(_ context.Context, a core.Account) (core.Account, error) {
	if _, ok := s.users[a.UserID]; !ok {
		return core.Account{}, core.Invalid("user_id", core.ErrMissingReference)
	}
	a.ID = core.Persisted(s.id())
	a.Version = 1
	s.accounts[a.ID.Int64()] = a
	return a, nil
}

func (s *state) GetAccount(_ context.Context, id int64) (core.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFound("account", id)
	}
	return a, nil
}

func (s *state) ListAccounts(_ context.Context, userID int64) ([]core.Account, error) {
	var out []core.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(x, y core.Account) int { return cmpID(x.ID, y.ID) })
	return out, nil
}

func (s *state) UpdateAccount(_ context.Context, a core.Account) (core.Account, error) {
	id := a.ID.Int64()
	stored, ok := s.accounts[id]
	if !ok {
		return core.Account{}, core.NotFound("account", id)
	}
	if stored.Version != a.Version {
		return core.Account{}, core.Inconsistent("update account", core.ErrConcurrentUpdate)
	}
	stored.Name = a.Name
	stored.Balance = a.Balance
	stored.Version++
	s.accounts[id] = stored
	return stored, nil
}

func (s *state) DeleteAccount(_ context.Context, id int64) error {
	if _, ok := s.accounts[id]; !ok {
		return core.NotFound("account", id)
	}
	s.deleteAccount(id)
	return nil
}

func (s *state) deleteAccount(id int64) {
	for tid, tx := range s.transactions {
		if tx.AccountID == id {
			s.deleteTransaction(tid)
		}
	}
	for adjID, adj := range s.adjustments {
		if adj.AccountID == id {
			delete(s.adjustments, adjID)
		}
	}
	delete(s.accounts, id)
}

func (s *state) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if _, ok := s.users[c.UserID]; !ok {
		return core.Category{}, core.Invalid("user_id", core.ErrMissingReference)
	}
	for _, existing := range s.categories {
		if existing.UserID == c.UserID && existing.Name == c.Name {
			return core.Category{}, core.Invalid("name", core.ErrDuplicateName)
		}
	}
	c.ID = core.Persisted(s.id())
	s.categories[c.ID.Int64()] = c
	return c, nil
}

func (s *state) GetCategory(_ context.Context, id int64) (core.Category, error) {
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *state) DeleteCategory(_ context.Context, id int64) error {
	if _, ok := s.categories[id]; !ok {
		return core.NotFound("category", id)
	}
	s.deleteCategory(id)
	return nil
}

func (s *state) deleteCategory(id int64) {
	for tid, tx := range s.transactions {
		if tx.CategoryID == id {
			s.deleteTransaction(tid)
		}
	}
	delete(s.categories, id)
}

func (s *state) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := s.checkTransactionRefs(tx); err != nil {
		return core.Transaction{}, err
	}
	if tx.TemplateID != 0 {
		for _, existing := range s.transactions {
			if existing.TemplateID == tx.TemplateID && existing.Date == tx.Date {
				return core.Transaction{}, core.Inconsistent("materialize", core.ErrDuplicateInstance)
			}
		}
	}
	tx.ID = core.Persisted(s.id())
	tx = copyTx(tx)
	s.transactions[tx.ID.Int64()] = tx
	return copyTx(tx), nil
}

func (s *state) checkTransactionRefs(tx core.Transaction) error {
	if _, ok := s.users[tx.UserID]; !ok {
		return core.Invalid("user_id", core.ErrMissingReference)
	}
	if _, ok := s.accounts[tx.AccountID]; !ok {
		return core.Invalid("account_id", core.ErrMissingReference)
	}
	if _, ok := s.categories[tx.CategoryID]; !ok {
		return core.Invalid("category_id", core.ErrMissingReference)
	}
	return nil
}

func (s *state) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return copyTx(tx), nil
}

func (s *state) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	id := tx.ID.Int64()
	stored, ok := s.transactions[id]
	if !ok {
		return core.NotFound("transaction", id)
	}
	if err := s.checkTransactionRefs(tx); err != nil {
		return err
	}
	// The owner and the template link are fixed at creation.
	tx.UserID = stored.UserID
	tx.TemplateID = stored.TemplateID
	s.transactions[id] = copyTx(tx)
	return nil
}

func (s *state) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := s.transactions[id]; !ok {
		return core.NotFound("transaction", id)
	}
	s.deleteTransaction(id)
	return nil
}

func (s *state) deleteTransaction(id int64) {
	delete(s.transactions, id)
	for tid, tx := range s.transactions {
		if tx.TemplateID == id {
			tx.TemplateID = 0
			s.transactions[tid] = tx
		}
	}
}

func (s *state) listTransactions(keep func(core.Transaction) bool) []core.Transaction {
	var out []core.Transaction
	for _, tx := range s.transactions {
		if keep(tx) {
			out = append(out, copyTx(tx))
		}
	}
	slices.SortFunc(out, func(x, y core.Transaction) int {
		if c := x.Date.Compare(y.Date); c != 0 {
			return c
		}
		return cmpID(x.ID, y.ID)
	})
	return out
}

func (s *state) ListTransactionsByAccount(_ context.Context, accountID int64) ([]core.Transaction, error) {
	return s.listTransactions(func(tx core.Transaction) bool { return tx.AccountID == accountID }), nil
}

func (s *state) ListTransactionsByCategory(_ context.Context, categoryID int64) ([]core.Transaction, error) {
	return s.listTransactions(func(tx core.Transaction) bool { return tx.CategoryID == categoryID }), nil
}

func (s *state) ListRecurringTemplates(_ context.Context) ([]core.Transaction, error) {
	out := s.listTransactions(func(tx core.Transaction) bool { return tx.Recurring })
	slices.SortStableFunc(out, func(x, y core.Transaction) int {
		if x.AccountID != y.AccountID {
			return cmpInt64(x.AccountID, y.AccountID)
		}
		return cmpID(x.ID, y.ID)
	})
	return out, nil
}

func (s *state) MaterializedDates(_ context.Context, templateID int64) ([]core.Date, error) {
	var out []core.Date
	for _, tx := range s.transactions {
		if tx.TemplateID == templateID {
			out = append(out, tx.Date)
		}
	}
	slices.SortFunc(out, core.Date.Compare)
	return out, nil
}

func (s *state) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	if _, ok := s.users[g.UserID]; !ok {
		return core.Goal{}, core.Invalid("user_id", core.ErrMissingReference)
	}
	g.ID = core.Persisted(s.id())
	s.goals[g.ID.Int64()] = g
	return g, nil
}

func (s *state) GetGoal(_ context.Context, id int64) (core.Goal, error) {
	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, core.NotFound("goal", id)
	}
	return g, nil
}

func (s *state) UpdateGoal(_ context.Context, g core.Goal) error {
	id := g.ID.Int64()
	stored, ok := s.goals[id]
	if !ok {
		return core.NotFound("goal", id)
	}
	stored.Current = g.Current
	s.goals[id] = stored
	return nil
}

func (s *state) CreateAdjustment(_ context.Context, adj core.Adjustment) (core.Adjustment, error) {
	if _, ok := s.accounts[adj.AccountID]; !ok {
		return core.Adjustment{}, core.Invalid("account_id", core.ErrMissingReference)
	}
	adj.ID = core.Persisted(s.id())
	s.adjustments[adj.ID.Int64()] = adj
	return adj, nil
}

func (s *state) ListAdjustments(_ context.Context, accountID int64) ([]core.Adjustment, error) {
	var out []core.Adjustment
	for _, adj := range s.adjustments {
		if adj.AccountID == accountID {
			out = append(out, adj)
		}
	}
	slices.SortFunc(out, func(x, y core.Adjustment) int { return cmpID(x.ID, y.ID) })
	return out, nil
}

func cmpID(a, b core.Identity) int { return cmpInt64(a.Int64(), b.Int64()) }

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var _ storage.Store = (*Store)(nil)
var _ storage.Tx = (*state)(nil)
