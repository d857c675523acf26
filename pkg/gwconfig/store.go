package gwconfig

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hedgehog/gwcore/pkg/gwerr"
	"github.com/hedgehog/gwcore/pkg/gwtypes"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConfigs    = []byte("configs")
	bucketGeneration = []byte("generation")
	keyCurrent       = []byte("current")
)

// Store is the GenId-keyed configuration database: every applied
// ExternalConfig is retained under the configs bucket, and the
// generation bucket's single "current" key names which one is live,
// mirroring the teacher's bucket-per-entity BoltStore shape.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if absent) the configuration database under
// dataDir.
func OpenStore(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "gwconfig.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketConfigs, bucketGeneration} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func genKey(gen gwtypes.GenId) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(gen))
	return buf
}

// Put stores cfg under gen, rejecting the write if gen was already used,
// per §4.J's duplicate-GenId rejection policy.
func (s *Store) Put(gen gwtypes.GenId, cfg ExternalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("gwconfig: marshal config: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketConfigs)
		if b.Get(genKey(gen)) != nil {
			return &gwerr.ConfigAlreadyExists{Gen: gen}
		}
		return b.Put(genKey(gen), data)
	})
}

// Get returns the configuration stored under gen, if any.
func (s *Store) Get(gen gwtypes.GenId) (ExternalConfig, bool, error) {
	var cfg ExternalConfig
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfigs).Get(genKey(gen))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &cfg)
	})
	return cfg, found, err
}

// SetCurrent records gen as the live generation.
func (s *Store) SetCurrent(gen gwtypes.GenId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGeneration).Put(keyCurrent, genKey(gen))
	})
}

// CurrentGeneration returns the live GenId, if one has been set.
func (s *Store) CurrentGeneration() (gwtypes.GenId, bool, error) {
	var gen gwtypes.GenId
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketGeneration).Get(keyCurrent)
		if data == nil {
			return nil
		}
		found = true
		gen = gwtypes.GenId(binary.BigEndian.Uint64(data))
		return nil
	})
	return gen, found, err
}

// CurrentConfig returns the live generation's configuration, if any has
// been applied.
func (s *Store) CurrentConfig() (ExternalConfig, gwtypes.GenId, bool, error) {
	gen, found, err := s.CurrentGeneration()
	if err != nil || !found {
		return ExternalConfig{}, 0, false, err
	}
	cfg, found, err := s.Get(gen)
	return cfg, gen, found, err
}
