package addr_book

import (
	"errors"
	"fmt"

	"github.com/al-kimmel-serj/media-bus"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSize = 256

// Book caches Addrs by name for transport adapters that push into many members.
// A failed push evicts the cached Addr; the next Send resolves the name again.
type Book struct {
	handle *bus.Handle
	cache  *lru.Cache[bus.Name, *bus.Addr]
}

func New(handle *bus.Handle, size int) (*Book, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[bus.Name, *bus.Addr](size)
	if err != nil {
		return nil, fmt.Errorf("lru.New error: %w", err)
	}
	return &Book{
		handle: handle,
		cache:  cache,
	}, nil
}

func (b *Book) Resolve(name bus.Name) (*bus.Addr, error) {
	if addr, ok := b.cache.Get(name); ok {
		return addr, nil
	}
	addr, err := b.handle.Addr(string(name))
	if err != nil {
		return nil, err
	}
	b.cache.Add(name, addr)
	return addr, nil
}

// Send pushes data to name without waiting. It does not retry.
func (b *Book) Send(name bus.Name, data []byte) error {
	addr, err := b.Resolve(name)
	if err != nil {
		return err
	}
	err = addr.Send(data)
	if errors.Is(err, bus.ErrDeliveryFailed) {
		b.cache.Remove(name)
	}
	return err
}

func (b *Book) Forget(name bus.Name) {
	b.cache.Remove(name)
}

func (b *Book) Len() int {
	return b.cache.Len()
}
