// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package keychain

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrKeyNotFound defines that key ring has no key for provided lookup value.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyEncrypted defines that key is encrypted and no passphrase was provided.
	ErrKeyEncrypted = errors.New("key is encrypted")
	// ErrWrongPassphrase defines that key could not be decrypted with provided passphrase.
	ErrWrongPassphrase = errors.New("wrong passphrase")
)

const (
	saltSize  = 16
	nonceSize = 24

	// scrypt parameters, interactive login strength.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// KeyRing provides private keys of the wallet.
type KeyRing interface {
	// KeyByPubKey returns key with provided serialized compressed or uncompressed public key.
	KeyByPubKey(pubKey []byte) (*Key, error)
	// KeyByPubKeyHash returns key with provided hash160 of the compressed public key.
	KeyByPubKeyHash(hash []byte) (*Key, error)
}

// Key describes wallet key which private part could be encrypted.
type Key struct {
	pubKey     *btcec.PublicKey
	privKey    *btcec.PrivateKey
	salt       []byte
	nonce      [nonceSize]byte
	ciphertext []byte
}

// NewKey is a constructor for unencrypted Key.
func NewKey(privKey *btcec.PrivateKey) *Key {
	return &Key{pubKey: privKey.PubKey(), privKey: privKey}
}

// NewEncryptedKey is a constructor for Key with private part encrypted by passphrase.
func NewEncryptedKey(privKey *btcec.PrivateKey, passphrase []byte) (*Key, error) {
	key := &Key{pubKey: privKey.PubKey(), salt: make([]byte, saltSize)}
	if _, err := io.ReadFull(rand.Reader, key.salt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, key.nonce[:]); err != nil {
		return nil, err
	}

	secret, err := deriveSecret(passphrase, key.salt)
	if err != nil {
		return nil, err
	}

	key.ciphertext = secretbox.Seal(nil, privKey.Serialize(), &key.nonce, secret)

	return key, nil
}

// PubKey returns public key.
func (k *Key) PubKey() *btcec.PublicKey {
	return k.pubKey
}

// IsEncrypted returns true if private key is stored encrypted.
func (k *Key) IsEncrypted() bool {
	return k.privKey == nil
}

// PrivKey returns private key, decrypts it with passphrase if needed.
func (k *Key) PrivKey(passphrase []byte) (*btcec.PrivateKey, error) {
	if !k.IsEncrypted() {
		return k.privKey, nil
	}

	if len(passphrase) == 0 {
		return nil, ErrKeyEncrypted
	}

	secret, err := deriveSecret(passphrase, k.salt)
	if err != nil {
		return nil, err
	}

	plain, ok := secretbox.Open(nil, k.ciphertext, &k.nonce, secret)
	if !ok {
		return nil, ErrWrongPassphrase
	}

	privKey, _ := btcec.PrivKeyFromBytes(plain)

	return privKey, nil
}

// deriveSecret derives secretbox key from passphrase.
func deriveSecret(passphrase, salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, err
	}

	var secret [32]byte
	copy(secret[:], derived)

	return &secret, nil
}

// MemKeyRing is in-memory KeyRing implementation.
type MemKeyRing struct {
	mu         sync.RWMutex
	byPubKey   map[string]*Key
	byPubKeyID map[string]*Key
}

// NewMemKeyRing is a constructor for MemKeyRing.
func NewMemKeyRing(keys ...*Key) *MemKeyRing {
	ring := &MemKeyRing{
		byPubKey:   make(map[string]*Key),
		byPubKeyID: make(map[string]*Key),
	}
	for _, key := range keys {
		ring.Add(key)
	}

	return ring
}

// Add stores key in the ring.
func (ring *MemKeyRing) Add(key *Key) {
	ring.mu.Lock()
	defer ring.mu.Unlock()

	compressed := key.pubKey.SerializeCompressed()
	ring.byPubKey[string(compressed)] = key
	ring.byPubKey[string(key.pubKey.SerializeUncompressed())] = key
	ring.byPubKeyID[string(btcutil.Hash160(compressed))] = key
}

// KeyByPubKey implements KeyRing.
func (ring *MemKeyRing) KeyByPubKey(pubKey []byte) (*Key, error) {
	ring.mu.RLock()
	defer ring.mu.RUnlock()

	key, ok := ring.byPubKey[string(pubKey)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return key, nil
}

// KeyByPubKeyHash implements KeyRing.
func (ring *MemKeyRing) KeyByPubKeyHash(hash []byte) (*Key, error) {
	ring.mu.RLock()
	defer ring.mu.RUnlock()

	key, ok := ring.byPubKeyID[string(hash)]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return key, nil
}
