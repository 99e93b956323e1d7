// Package keychain manages the signing keys of a wallet: keys derived from
// the wallet mnemonic, keys held by hardware devices and imported private
// keys, plus the one key currently used for signing.
package keychain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/status-im/signingkeychain-go/crypto"
	"github.com/status-im/signingkeychain-go/derivationpath"
	"github.com/status-im/signingkeychain-go/hdnode"
	"github.com/status-im/signingkeychain-go/keystore"
	"github.com/status-im/signingkeychain-go/signingkey"
	"github.com/status-im/signingkeychain-go/types"
)

var logger = log.New("package", "signingkeychain-go")

// Local keys live on account 0, external chain.
const (
	localAccount = 0
	localChange  = 0
)

// Transaction is anything producing the 32 bytes hash to sign.
type Transaction interface {
	SigningHash() ([]byte, error)
}

// Keychain owns a set of signing keys and the active key pointer.
type Keychain struct {
	cfg     Config
	deriver *hdnode.Deriver

	// localMu and hwMu serialize derivations per backend, so a key waiting
	// on device confirmation does not hold up local keys.
	localMu sync.Mutex
	hwMu    sync.Mutex

	mu     sync.Mutex
	keys   *signingkey.Set
	active int

	// notifyMu is taken before mu is released so notifications keep the
	// order of the mutations.
	notifyMu  sync.Mutex
	activeKey observable[signingkey.SigningKey]
	keySet    observable[[]signingkey.SigningKey]
	events    event.Feed

	hasActive  chan struct{}
	activeOnce sync.Once
	closed     chan struct{}
	closeOnce  sync.Once
}

// New returns a keychain deriving local keys from deriver.
func New(deriver *hdnode.Deriver, cfg Config) (*Keychain, error) {
	k := &Keychain{
		cfg:       cfg,
		deriver:   deriver,
		keys:      signingkey.NewSet(),
		active:    -1,
		hasActive: make(chan struct{}),
		closed:    make(chan struct{}),
	}

	k.keySet.Set(nil)

	if cfg.StartWithInitialSigningKey {
		if _, err := k.DeriveNextLocalHDSigningKey(cfg.HardenedAddresses, true); err != nil {
			return nil, err
		}
	}

	return k, nil
}

func NewFromMnemonic(mnemonic, passphrase string, cfg Config) (*Keychain, error) {
	deriver, err := hdnode.NewDeriverFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}

	return New(deriver, cfg)
}

// NewFromKeystore loads the mnemonic from an encrypted keystore file.
func NewFromKeystore(path, password, passphrase string, cfg Config) (*Keychain, error) {
	mnemonic, err := keystore.Load(path, password)
	if err != nil {
		return nil, err
	}

	return NewFromMnemonic(mnemonic, passphrase, cfg)
}

// Close wakes up pending Sign calls. The keychain keeps its keys.
func (k *Keychain) Close() error {
	k.closeOnce.Do(func() {
		close(k.closed)
	})

	return nil
}

// Size returns the number of keys.
func (k *Keychain) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.keys.Len()
}

// SigningKeys returns the keys in insertion order.
func (k *Keychain) SigningKeys() []signingkey.SigningKey {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.keys.All()
}

// ActiveSigningKey returns the active key, if any.
func (k *Keychain) ActiveSigningKey() fn.Option[signingkey.SigningKey] {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.active < 0 {
		return fn.None[signingkey.SigningKey]()
	}

	return fn.Some(k.keys.At(k.active))
}

// ObserveActiveSigningKey sends the active key to ch, the current one first.
// Nothing is sent until a key is active.
func (k *Keychain) ObserveActiveSigningKey(ch chan<- signingkey.SigningKey) event.Subscription {
	return k.activeKey.Subscribe(ch)
}

// ObserveSigningKeys sends the key list to ch, the current one first.
func (k *Keychain) ObserveSigningKeys(ch chan<- []signingkey.SigningKey) event.Subscription {
	return k.keySet.Subscribe(ch)
}

// SubscribeEvents sends discrete keychain events to ch.
func (k *Keychain) SubscribeEvents(ch chan<- Event) event.Subscription {
	return subscribeQueued(&k.events, ch)
}

// DeriveNextLocalHDSigningKey derives the local key following the local keys
// already in the keychain.
func (k *Keychain) DeriveNextLocalHDSigningKey(hardened, alsoSwitchTo bool) (signingkey.SigningKey, error) {
	k.localMu.Lock()
	defer k.localMu.Unlock()

	path, err := k.nextPath(signingkey.KindLocal, hardened)
	if err != nil {
		return nil, err
	}

	return k.deriveLocal(path, alsoSwitchTo)
}

// DeriveLocalHDSigningKey derives the local key at path. Deriving a path
// twice returns the key already present.
func (k *Keychain) DeriveLocalHDSigningKey(path derivationpath.Path, alsoSwitchTo bool) (signingkey.SigningKey, error) {
	k.localMu.Lock()
	defer k.localMu.Unlock()

	return k.deriveLocal(path, alsoSwitchTo)
}

func (k *Keychain) deriveLocal(path derivationpath.Path, alsoSwitchTo bool) (signingkey.SigningKey, error) {
	key, err := k.localKeyAt(path)
	if err != nil {
		return nil, err
	}

	return k.insert(key, alsoSwitchTo), nil
}

func (k *Keychain) localKeyAt(path derivationpath.Path) (signingkey.SigningKey, error) {
	node, err := k.deriver.Derive(path)
	if err != nil {
		return nil, err
	}

	priv, err := crypto.ToECDSA(node.PrivateKey)
	if err != nil {
		return nil, err
	}

	return signingkey.FromHDNode(priv, path), nil
}

// DeriveHWSigningKey adds the key held by hw at the selected path. prompt
// asks the device to display the address; it defaults to false.
func (k *Keychain) DeriveHWSigningKey(ctx context.Context, sel HWPathSelector, hw signingkey.HardwareWallet, alsoSwitchTo bool, prompt fn.Option[bool]) (signingkey.SigningKey, error) {
	if hw == nil {
		return nil, ErrNilHardwareWallet
	}

	k.hwMu.Lock()
	defer k.hwMu.Unlock()

	var path derivationpath.Path
	switch s := sel.(type) {
	case HWNext:
		p, err := k.nextPath(signingkey.KindHardware, s.Hardened)
		if err != nil {
			return nil, err
		}
		path = p
	case HWPath:
		path = s.Path
	default:
		panic(fmt.Sprintf("unknown hardware path selector %T", sel))
	}

	key, err := signingkey.FromHDPathWithHardwareWallet(ctx, path, hw, prompt.UnwrapOr(false))
	if err != nil {
		return nil, err
	}

	return k.insert(key, alsoSwitchTo), nil
}

// AddSigningKeyFromPrivateKey imports priv as a non HD key.
func (k *Keychain) AddSigningKeyFromPrivateKey(priv *ecdsa.PrivateKey, name fn.Option[string], alsoSwitchTo bool) signingkey.SigningKey {
	return k.insert(signingkey.FromPrivateKey(priv, name), alsoSwitchTo)
}

// SwitchSigningKey changes the active key. Index selectors are clamped to the
// keychain size and fail with ErrEmptyKeychain when there is no key.
func (k *Keychain) SwitchSigningKey(sel Selector) (signingkey.SigningKey, error) {
	switch s := sel.(type) {
	case First:
		return k.switchToIndex(0)
	case Last:
		k.mu.Lock()
		last := k.keys.Len() - 1
		k.mu.Unlock()
		return k.switchToIndex(last)
	case ToIndex:
		return k.switchToIndex(s.Index)
	case ToSigningKey:
		k.checkOwner(s.Key)
		return k.insert(s.Key, true), nil
	default:
		panic(fmt.Sprintf("unknown selector %T", sel))
	}
}

func (k *Keychain) switchToIndex(index int) (signingkey.SigningKey, error) {
	k.mu.Lock()

	size := k.keys.Len()
	if size == 0 {
		k.mu.Unlock()
		return nil, ErrEmptyKeychain
	}

	if index < 0 {
		index = 0
	}

	if index > size-1 {
		index = size - 1
	}

	key := k.keys.At(index)
	activated := k.active != index
	k.active = index

	k.commit(update{activated: activated, index: index, key: key})

	return key, nil
}

// RestoreLocalHDSigningKeysUpToIndex derives the missing local keys with
// address index below n. Addresses are not checked for activity.
func (k *Keychain) RestoreLocalHDSigningKeysUpToIndex(n int) ([]signingkey.SigningKey, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeRestoreIndex, n)
	}

	k.localMu.Lock()
	defer k.localMu.Unlock()

	var restored []signingkey.SigningKey
	for {
		k.mu.Lock()
		count := k.keys.CountLocalHD()
		k.mu.Unlock()

		if count >= n {
			break
		}

		path, err := k.nextPath(signingkey.KindLocal, k.cfg.HardenedAddresses)
		if err != nil {
			return restored, err
		}

		key, err := k.deriveLocal(path, false)
		if err != nil {
			return restored, err
		}

		restored = append(restored, key)
	}

	if len(restored) > 0 {
		logger.Debug("restored local signing keys", "count", len(restored), "upTo", n)
	}

	return restored, nil
}

// Sign signs tx with the active key, waiting for one to become active.
func (k *Keychain) Sign(ctx context.Context, tx Transaction) (*types.Signature, error) {
	select {
	case <-k.hasActive:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoActiveSigningKey, ctx.Err())
	case <-k.closed:
		return nil, fmt.Errorf("%w: keychain closed", ErrNoActiveSigningKey)
	}

	key, err := k.ActiveSigningKey().UnwrapOrErr(ErrNoActiveSigningKey)
	if err != nil {
		return nil, err
	}

	hash, err := tx.SigningHash()
	if err != nil {
		return nil, err
	}

	return key.Sign(ctx, hash)
}

// nextPath returns the first free address path after the keys of kind.
func (k *Keychain) nextPath(kind signingkey.Kind, hardened bool) (derivationpath.Path, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	index := k.keys.CountLocalHD()
	if kind == signingkey.KindHardware {
		index = k.keys.CountHardwareHD()
	}

	for {
		path, err := derivationpath.ForAddress(localAccount, localChange, uint32(index), hardened)
		if err != nil {
			return derivationpath.Path{}, err
		}

		// an explicit derivation may already have taken this index
		if _, taken := k.keys.ByPath(kind, path); !taken {
			return path, nil
		}

		index++
	}
}

// insert adds key unless present and activates it if asked. It returns the
// key stored in the keychain.
func (k *Keychain) insert(key signingkey.SigningKey, alsoSwitchTo bool) signingkey.SigningKey {
	k.mu.Lock()

	index, added := k.keys.Add(key)
	stored := k.keys.At(index)

	if added {
		logger.Debug("signing key added", "type", stored.Type().UniqueKey(), "index", index)
	}

	activated := false
	if alsoSwitchTo && k.active != index {
		k.active = index
		activated = true
	}

	k.commit(update{added: added, activated: activated, index: index, key: stored})

	return stored
}

type update struct {
	added     bool
	activated bool
	index     int
	key       signingkey.SigningKey
	all       []signingkey.SigningKey
}

// commit must be called with mu held and releases it. Observers are notified
// in mutation order.
func (k *Keychain) commit(u update) {
	if u.added {
		u.all = k.keys.All()
	}

	k.notifyMu.Lock()
	defer k.notifyMu.Unlock()
	k.mu.Unlock()

	if u.added {
		k.keySet.Set(u.all)
		k.events.Send(Event{Type: KeyAdded, Key: u.key, Index: u.index})
	}

	if u.activated {
		logger.Debug("active signing key changed", "index", u.index)
		k.activeKey.Set(u.key)
		k.events.Send(Event{Type: ActiveKeyChanged, Key: u.key, Index: u.index})
		k.activeOnce.Do(func() { close(k.hasActive) })
	}
}

// checkOwner panics when a local HD key does not derive from this keychain's seed.
func (k *Keychain) checkOwner(key signingkey.SigningKey) {
	if key == nil {
		panic("cannot switch to a nil signing key")
	}

	hd, ok := signingkey.AsHD(key.Type())
	if !ok || hd.Kind != signingkey.KindLocal {
		return
	}

	own, err := k.localKeyAt(hd.Path)
	if err != nil || !bytes.Equal(own.PublicKeyBytes(), key.PublicKeyBytes()) {
		panic(fmt.Sprintf("signing key at %s is not owned by this keychain", hd.Path))
	}
}
