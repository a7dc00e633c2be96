package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

const documentVersion = 1

// FileStore is a Store backed by a YAML document encrypted with an age passphrase.
// Writes replace the file atomically and leave it readable only by the owner.
type FileStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
	workFactor int
}

// FileStoreConfig configures a FileStore
type FileStoreConfig struct {
	Path       string
	Passphrase string
	// WorkFactor is the scrypt log2(N) used when encrypting; zero keeps the age default
	WorkFactor int
}

type document struct {
	Version  int                          `yaml:"version"`
	Services map[string]map[string]string `yaml:"services"`
}

// NewFileStore creates a file store. The file is created on the first Set.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("credential store path is required")
	}
	if cfg.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	return &FileStore{
		path:       cfg.Path,
		passphrase: cfg.Passphrase,
		workFactor: cfg.WorkFactor,
	}, nil
}

// Path returns the location of the encrypted file
func (f *FileStore) Path() string {
	return f.path
}

// Get implements Store
func (f *FileStore) Get(service, account string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", err
	}
	return doc.Services[service][account], nil
}

// Set implements Store
func (f *FileStore) Set(service, account, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if doc.Services[service] == nil {
		doc.Services[service] = map[string]string{}
	}
	doc.Services[service][account] = secret
	return f.save(doc)
}

// Accounts lists the accounts with a non-empty secret stored for service
func (f *FileStore) Accounts(service string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(doc.Services[service]))
	for account, secret := range doc.Services[service] {
		if secret != "" {
			accounts = append(accounts, account)
		}
	}
	return accounts, nil
}

func (f *FileStore) load() (*document, error) {
	doc := &document{Version: documentVersion, Services: map[string]map[string]string{}}

	ciphertext, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential store: %w", err)
	}

	identity, err := age.NewScryptIdentity(f.passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential store: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted credential store: %w", err)
	}

	if err := yaml.Unmarshal(plaintext, doc); err != nil {
		return nil, fmt.Errorf("parsing credential store: %w", err)
	}
	if doc.Services == nil {
		doc.Services = map[string]map[string]string{}
	}
	return doc, nil
}

func (f *FileStore) save(doc *document) error {
	plaintext, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}

	recipient, err := age.NewScryptRecipient(f.passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if f.workFactor > 0 {
		recipient.SetWorkFactor(f.workFactor)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	return writeFileAtomic(f.path, ciphertext.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating credential store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting credential store permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing credential store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing credential store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credential store: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing credential store: %w", err)
	}
	return nil
}
