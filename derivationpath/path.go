package derivationpath

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// Levels is the number of components of a BIP44 path.
	Levels = 5

	PurposeIndex  uint32 = 44
	CoinTypeIndex uint32 = 536
)

const (
	LevelPurpose = iota
	LevelCoinType
	LevelAccount
	LevelChange
	LevelAddressIndex
)

var levelNames = [Levels]string{"purpose", "coinType", "account", "change", "addressIndex"}

var (
	ErrWrongComponentCount = errors.New("wrong number of path components")
	ErrNotHardened         = errors.New("purpose, coin type and account must be hardened")
	ErrWrongPurpose        = errors.New("purpose must be 44'")
	ErrWrongCoinType       = errors.New("coin type must be 536'")
)

// Component is a single level of an HD path.
type Component struct {
	index    uint32
	hardened bool
	level    int
	name     string
}

// NewComponent returns a component at level. index is the value before hardening.
func NewComponent(index uint32, hardened bool, level int) (Component, error) {
	if index >= hardenedStart {
		return Component{}, fmt.Errorf("%w, got %d", ErrIndexOutOfRange, index)
	}

	c := Component{index: index, hardened: hardened, level: level}
	if level >= 0 && level < Levels {
		c.name = levelNames[level]
	}

	return c, nil
}

// ComponentFromEncoded splits an encoded index into index and hardening flag.
func ComponentFromEncoded(v uint32, level int) Component {
	c, _ := NewComponent(v&^hardenedStart, v >= hardenedStart, level)
	return c
}

func (c Component) Index() uint32  { return c.index }
func (c Component) Hardened() bool { return c.hardened }
func (c Component) Level() int     { return c.level }
func (c Component) Name() string   { return c.name }

// Encoded returns the index as used by BIP32 derivation, 2^31 added when hardened.
func (c Component) Encoded() uint32 {
	if c.hardened {
		return c.index + hardenedStart
	}

	return c.index
}

func (c Component) String() string {
	if c.hardened {
		return fmt.Sprintf("%d'", c.index)
	}

	return fmt.Sprintf("%d", c.index)
}

// Path is a BIP44 path purpose'/coinType'/account'/change/addressIndex.
// Paths are values; two paths are equal when their components are.
type Path struct {
	components [Levels]Component
}

// New creates a path from exactly five components.
func New(components ...Component) (Path, error) {
	if len(components) != Levels {
		return Path{}, fmt.Errorf("%w: expected %d, got %d", ErrWrongComponentCount, Levels, len(components))
	}

	var p Path
	for level, c := range components {
		if c.index >= hardenedStart {
			return Path{}, fmt.Errorf("%w, got %d", ErrIndexOutOfRange, c.index)
		}

		c.level = level
		c.name = levelNames[level]
		p.components[level] = c
	}

	for _, level := range []int{LevelPurpose, LevelCoinType, LevelAccount} {
		if !p.components[level].hardened {
			return Path{}, fmt.Errorf("%w: %s is %s", ErrNotHardened, levelNames[level], p.components[level])
		}
	}

	if p.components[LevelPurpose].index != PurposeIndex {
		return Path{}, ErrWrongPurpose
	}

	if p.components[LevelCoinType].index != CoinTypeIndex {
		return Path{}, ErrWrongCoinType
	}

	return p, nil
}

// ForAddress builds m/44'/536'/account'/change/address with the address
// component optionally hardened.
func ForAddress(account, change, address uint32, hardenedAddress bool) (Path, error) {
	values := []struct {
		index    uint32
		hardened bool
	}{
		{PurposeIndex, true},
		{CoinTypeIndex, true},
		{account, true},
		{change, false},
		{address, hardenedAddress},
	}

	components := make([]Component, Levels)
	for level, v := range values {
		c, err := NewComponent(v.index, v.hardened, level)
		if err != nil {
			return Path{}, err
		}

		components[level] = c
	}

	return New(components...)
}

func (p Path) Purpose() Component      { return p.components[LevelPurpose] }
func (p Path) CoinType() Component     { return p.components[LevelCoinType] }
func (p Path) Account() Component      { return p.components[LevelAccount] }
func (p Path) Change() Component       { return p.components[LevelChange] }
func (p Path) AddressIndex() Component { return p.components[LevelAddressIndex] }

// Components returns a copy of the path components.
func (p Path) Components() []Component {
	out := make([]Component, Levels)
	copy(out, p.components[:])

	return out
}

// IsZero reports whether p is the zero value, which is not a valid path.
func (p Path) IsZero() bool {
	return p == Path{}
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	return p.components == other.components
}

// Uint32s returns the encoded indexes, suitable for BIP32 child derivation.
func (p Path) Uint32s() []uint32 {
	out := make([]uint32, Levels)
	for i, c := range p.components {
		out[i] = c.Encoded()
	}

	return out
}

// String returns the canonical form, for example m/44'/536'/0'/0/1'.
func (p Path) String() string {
	segments := []string{"m"}
	for _, c := range p.components {
		segments = append(segments, c.String())
	}

	return strings.Join(segments, "/")
}

// Encode returns the binary form sent to devices: a count byte followed by
// 4-byte big endian encoded indexes.
func (p Path) Encode() []byte {
	data := new(bytes.Buffer)
	data.WriteByte(byte(Levels))
	for _, segment := range p.Uint32s() {
		binary.Write(data, binary.BigEndian, segment)
	}

	return data.Bytes()
}

// DecodeBinary reads a path written by Encode and returns it with the remaining bytes.
func DecodeBinary(raw []byte) (Path, []byte, error) {
	if len(raw) < 1 {
		return Path{}, nil, errors.New("missing path length")
	}

	count := int(raw[0])
	if count != Levels {
		return Path{}, nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongComponentCount, Levels, count)
	}

	if len(raw) < 1+4*count {
		return Path{}, nil, fmt.Errorf("path truncated: want %d bytes, have %d", 4*count, len(raw)-1)
	}

	components := make([]Component, count)
	for i := 0; i < count; i++ {
		v := binary.BigEndian.Uint32(raw[1+4*i:])
		components[i] = ComponentFromEncoded(v, i)
	}

	path, err := New(components...)
	if err != nil {
		return Path{}, nil, err
	}

	return path, raw[1+4*count:], nil
}

// WithAddressIndex returns a copy of p with a different address component.
func (p Path) WithAddressIndex(index uint32, hardened bool) (Path, error) {
	c, err := NewComponent(index, hardened, LevelAddressIndex)
	if err != nil {
		return Path{}, err
	}

	p.components[LevelAddressIndex] = c

	return p, nil
}
