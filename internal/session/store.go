package session

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const defaultIdleTTL = 30 * time.Minute

type Store struct {
	cache *gocache.Cache
}

func NewStore(idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &Store{
		cache: gocache.New(idleTTL, idleTTL/2),
	}
}

func (s *Store) Get(sessionID string) *TravelContext {
	if value, found := s.cache.Get(sessionID); found {
		travelCtx := value.(*TravelContext)
		s.cache.SetDefault(sessionID, travelCtx)
		return travelCtx
	}

	logrus.Debugf("Создан новый контекст сессии для %s", sessionID)
	travelCtx := NewTravelContext()
	s.cache.SetDefault(sessionID, travelCtx)
	return travelCtx
}

func (s *Store) Put(sessionID string, travelCtx *TravelContext) {
	s.cache.SetDefault(sessionID, travelCtx)
}

func (s *Store) Evict(sessionID string) {
	s.cache.Delete(sessionID)
}
