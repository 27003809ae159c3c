// Package badger provides the Badger-backed member store.
//
// Layout:
//
//	m/<id>     JSON encoded domain.Member
//	e/<email>  member id (unique contact index)
//	t/<token>  member id (unique token index)
//
// Insert and MarkVerified read, check and write inside one optimistic
// transaction. Badger aborts a transaction whose reads were overwritten
// by a concurrent commit (ErrConflict); the store retries it, and the
// retry observes the winner's write.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	dgbadger "github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/memgate-go/internal/core/domain"
	"github.com/yndnr/memgate-go/internal/core/service"
	"github.com/yndnr/memgate-go/internal/telemetry/logger"
)

const (
	memberPrefix = "m/"
	emailPrefix  = "e/"
	tokenPrefix  = "t/"
	schemaKey    = "meta/schema_version"

	schemaVersion = "1"
	maxRetries    = 16
)

// record is the stored value. domain.Member hides Token from JSON, the
// store has to keep it.
type record struct {
	domain.Member
	Token string `json:"token"`
}

func encode(m *domain.Member) ([]byte, error) {
	return json.Marshal(record{Member: *m, Token: m.Token})
}

func decode(v []byte) (*domain.Member, error) {
	var r record
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, err
	}
	m := r.Member
	m.Token = r.Token
	return &m, nil
}

// Config configures the Badger store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM (tests).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is the interval between value log GC runs. 0 disables GC.
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	GCThreshold float64

	Logger logger.Logger
}

// Store persists members in Badger.
type Store struct {
	db  *dgbadger.DB
	cfg Config
	log logger.Logger
	now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// Open opens (or creates) a Badger store.
func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := dgbadger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(&badgerLogger{log: cfg.Logger.With("component", "badger")}).
		WithSyncWrites(cfg.SyncWrites).
		WithDetectConflicts(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		log:    cfg.Logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.gcLoop()
	return s, nil
}

// CreateSchema records the key layout version. Idempotent.
func (s *Store) CreateSchema(ctx context.Context) error {
	return s.update(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		switch {
		case errors.Is(err, dgbadger.ErrKeyNotFound):
			return txn.Set([]byte(schemaKey), []byte(schemaVersion))
		case err != nil:
			return err
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(v) != schemaVersion {
			return fmt.Errorf("unsupported schema version %q", v)
		}
		return nil
	})
}

// FindByContact returns the member with the given email.
func (s *Store) FindByContact(ctx context.Context, email string) (*domain.Member, error) {
	return s.findVia(ctx, emailPrefix+email)
}

// FindByToken returns the member holding token.
func (s *Store) FindByToken(ctx context.Context, token string) (*domain.Member, error) {
	return s.findVia(ctx, tokenPrefix+token)
}

func (s *Store) findVia(ctx context.Context, indexKey string) (*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var m *domain.Member
	err := s.db.View(func(txn *dgbadger.Txn) error {
		var err error
		m, err = loadVia(txn, indexKey)
		return err
	})
	if err != nil {
		return nil, wrap(err)
	}
	return m, nil
}

// Insert stores a new pending member and both unique indexes atomically.
func (s *Store) Insert(ctx context.Context, m *domain.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	value, err := encode(m)
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}

	return s.update(ctx, func(txn *dgbadger.Txn) error {
		if exists, err := has(txn, emailPrefix+m.Email); err != nil {
			return err
		} else if exists {
			return domain.ErrDuplicateContact.WithDetails(m.Email)
		}
		if exists, err := has(txn, tokenPrefix+m.Token); err != nil {
			return err
		} else if exists {
			return domain.ErrDuplicateToken
		}
		if exists, err := has(txn, memberPrefix+m.ID); err != nil {
			return err
		} else if exists {
			return domain.ErrMemberValidation.WithDetails("id already exists")
		}

		if err := txn.Set([]byte(memberPrefix+m.ID), value); err != nil {
			return err
		}
		if err := txn.Set([]byte(emailPrefix+m.Email), []byte(m.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(tokenPrefix+m.Token), []byte(m.ID))
	})
}

// MarkVerified performs the pending -> verified transition as a
// compare-and-set inside one transaction.
func (s *Store) MarkVerified(ctx context.Context, token, externalID string) (bool, error) {
	if err := domain.ValidateExternalID(externalID); err != nil {
		return false, err
	}
	var transitioned bool
	err := s.update(ctx, func(txn *dgbadger.Txn) error {
		transitioned = false
		m, err := loadVia(txn, tokenPrefix+token)
		if err != nil {
			return err
		}
		if !m.MarkVerified(externalID, s.now()) {
			return nil
		}
		value, err := encode(m)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(memberPrefix+m.ID), value); err != nil {
			return err
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

// List returns members matching filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter service.ListFilter) ([]*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*domain.Member
	err := s.db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(memberPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m *domain.Member
			if err := it.Item().Value(func(v []byte) error {
				var err error
				m, err = decode(v)
				return err
			}); err != nil {
				return err
			}
			if filter.Matches(m) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// RegisterMetrics exposes Badger's on-disk size through reg.
func (s *Store) RegisterMetrics(reg interface{ MustRegister(...prometheus.Collector) }) {
	lsm := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "memgate",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes.",
	}, func() float64 {
		l, _ := s.db.Size()
		return float64(l)
	})
	vlog := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "memgate",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes.",
	}, func() float64 {
		_, v := s.db.Size()
		return float64(v)
	})
	reg.MustRegister(lsm, vlog)
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	select {
	case <-s.stopCh:
		return nil
	default:
	}
	close(s.stopCh)
	<-s.doneCh
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger: close db: %w", err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, dgbadger.ErrConflict) && attempt < maxRetries {
			continue
		}
		return wrap(err)
	}
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)
	if s.cfg.GCInterval <= 0 || s.cfg.InMemory {
		<-s.stopCh
		return
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(s.cfg.GCThreshold); err != nil {
					if !errors.Is(err, dgbadger.ErrNoRewrite) {
						s.log.Warn("badger value log gc failed", "error", err)
					}
					break
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

func loadVia(txn *dgbadger.Txn, indexKey string) (*domain.Member, error) {
	idItem, err := txn.Get([]byte(indexKey))
	if err != nil {
		return nil, err
	}
	id, err := idItem.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	item, err := txn.Get(append([]byte(memberPrefix), id...))
	if err != nil {
		return nil, err
	}
	var m *domain.Member
	err = item.Value(func(v []byte) error {
		m, err = decode(v)
		return err
	})
	return m, err
}

func has(txn *dgbadger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// wrap maps Badger errors to domain errors. Domain errors pass through.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsDomainError(err, ""):
		return err
	case errors.Is(err, dgbadger.ErrKeyNotFound):
		return domain.ErrMemberNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domain.ErrStorage.WithCause(err)
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

var _ service.MemberRepository = (*Store)(nil)
