package order

import (
	"sort"
	"sync"
)

// Book 挂单集合：order id -> Order，只保存 OPEN 状态的订单。
type Book struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewBook() *Book {
	return &Book{orders: make(map[string]*Order)}
}

func (b *Book) Set(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
}

func (b *Book) Get(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o, ok
}

// Delete 删除并返回是否存在。
func (b *Book) Delete(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.orders[id]
	delete(b.orders, id)
	return ok
}

// IDs 返回当前所有挂单 ID（排序后，保证对账顺序稳定）。
func (b *Book) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.orders))
	for id := range b.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List 返回全部挂单（拷贝）。
func (b *Book) List() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	res := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		res = append(res, o.Clone())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// ByAsset 返回指定交易对的挂单（拷贝）。
func (b *Book) ByAsset(assetID int64) []*Order {
	all := b.List()
	res := all[:0]
	for _, o := range all {
		if o.Asset.ID == assetID {
			res = append(res, o)
		}
	}
	return res
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}
