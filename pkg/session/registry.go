package session

import (
	"github.com/classmesh/classmesh/pkg/com"
	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/monitoring"
)

// Registry is the single source of truth for which participants this
// session holds connection records for. Invariant: at most one record
// per participant id. All mutation happens on the session loop, one
// handler at a time, so the invariant needs no extra locking.
type Registry struct {
	peers com.Map[string, *Peer]
	log   *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{peers: com.NewMap[string, *Peer](), log: log}
}

func (r *Registry) Upsert(id string, p *Peer) {
	r.peers.Put(id, p)
	monitoring.LivePeers.Set(float64(r.peers.Len()))
}

func (r *Registry) Remove(id string) {
	r.peers.RemoveByKey(id)
	monitoring.LivePeers.Set(float64(r.peers.Len()))
}

func (r *Registry) Find(id string) (*Peer, bool) {
	p, err := r.peers.Find(id)
	return p, err == nil
}

func (r *Registry) All() []*Peer {
	var out []*Peer
	r.peers.ForEach(func(p *Peer) { out = append(out, p) })
	return out
}

func (r *Registry) Len() int { return r.peers.Len() }

// DestroyAll closes and removes every record.
func (r *Registry) DestroyAll() {
	r.peers.Drain(func(p *Peer) { p.Close() })
	monitoring.LivePeers.Set(0)
}
