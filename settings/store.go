package settings

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/viper"
)

// ErrNoFile is returned by Put when the store has no file to write to.
var ErrNoFile = errors.New("settings: no config file")

// Store is a small key/value settings file. Paths are viper keys such as
// "map.tile_server".
type Store struct {
	mu sync.Mutex
	v  *viper.Viper
}

// New wraps an already configured viper instance.
func New(v *viper.Viper) *Store {
	return &Store{v: v}
}

// Open reads path if it exists. Put creates it.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	return New(v), nil
}

//Get value at path, nil when unset
func (s *Store) Get(path string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.Get(path)
}

//GetString value at path as string
func (s *Store) GetString(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(path)
}

// Put sets path and writes the whole store back to its file.
func (s *Store) Put(path string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(path, value)
	if s.v.ConfigFileUsed() == "" {
		return ErrNoFile
	}
	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
