package permission

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"authority/internal/auth/models"
	"authority/internal/auth/store/credential"
	permissionstore "authority/internal/auth/store/permission"
	"authority/internal/platform/metrics"
	id "authority/pkg/domain"
	dErrors "authority/pkg/domain-errors"
)

// countingStore records how often the resolver reaches the source of truth.
type countingStore struct {
	Store
	lists  atomic.Int32
	points atomic.Int32
	err    error
}

func (c *countingStore) ListCodenamesForUser(ctx context.Context, userID id.UserID) ([]string, error) {
	c.lists.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Store.ListCodenamesForUser(ctx, userID)
}

func (c *countingStore) HasPermission(ctx context.Context, userID id.UserID, codename string) (bool, error) {
	c.points.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return c.Store.HasPermission(ctx, userID, codename)
}

func (c *countingStore) HasAnyPermission(ctx context.Context, userID id.UserID, codenames []string) (bool, error) {
	c.points.Add(1)
	if c.err != nil {
		return false, c.err
	}
	return c.Store.HasAnyPermission(ctx, userID, codenames)
}

// gatedStore holds ListCodenamesForUser until released and fails with the
// context error if the load context was cancelled meanwhile.
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListCodenamesForUser(ctx context.Context, userID id.UserID) ([]string, error) {
	close(g.entered)
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.ListCodenamesForUser(ctx, userID)
}

type ResolverSuite struct {
	suite.Suite
	server   *miniredis.Miniredis
	client   *redis.Client
	groups   *permissionstore.InMemoryStore
	store    *countingStore
	metrics  *metrics.Metrics
	logs     *bytes.Buffer
	resolver *Resolver

	user   id.UserID
	admins models.Group
	audit  models.Group
	view   id.PermissionID
	export id.PermissionID
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.server = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.server.Addr(), MaxRetries: -1})
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.logs = &bytes.Buffer{}

	s.groups = permissionstore.NewInMemoryStore()
	s.user = id.UserID(uuid.New())
	s.admins = models.Group{ID: id.GroupID(uuid.New()), Codename: "admins", IsActive: true}
	s.audit = models.Group{ID: id.GroupID(uuid.New()), Codename: "auditors", IsActive: true}
	s.groups.AddGroup(s.admins)
	s.groups.AddGroup(s.audit)

	view := models.Permission{ID: id.PermissionID(uuid.New()), Codename: "users.view"}
	del := models.Permission{ID: id.PermissionID(uuid.New()), Codename: "users.delete"}
	export := models.Permission{ID: id.PermissionID(uuid.New()), Codename: "reports.export"}
	for _, p := range []models.Permission{view, del, export} {
		s.groups.AddPermission(p)
	}
	s.Require().NoError(s.groups.Grant(s.admins.ID, view.ID))
	s.Require().NoError(s.groups.Grant(s.admins.ID, del.ID))
	s.Require().NoError(s.groups.Grant(s.audit.ID, export.ID))
	s.view, s.export = view.ID, export.ID
	s.Require().NoError(s.groups.AddMember(s.user, s.admins.ID))
	s.Require().NoError(s.groups.AddMember(s.user, s.audit.ID))

	s.store = &countingStore{Store: s.groups}
	s.resolver = NewResolver(s.store, credential.NewRedisStore(s.client),
		WithTTL(10*time.Minute),
		WithLogger(slog.New(slog.NewTextHandler(s.logs, nil))),
		WithMetrics(s.metrics),
	)
}

func (s *ResolverSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *ResolverSuite) TestUnionOfActiveGroups() {
	perms, err := s.resolver.GetUserPermissions(context.Background(), s.user, false)
	s.Require().NoError(err)
	s.Equal([]string{"reports.export", "users.delete", "users.view"}, perms)
}

func (s *ResolverSuite) TestCachesResolvedSet() {
	ctx := context.Background()
	_, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	_, err = s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)

	s.Equal(int32(1), s.store.lists.Load())
	s.Equal(10*time.Minute, s.server.TTL("permissions:user:"+s.user.String()))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PermissionCache.WithLabelValues("hit")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PermissionCache.WithLabelValues("miss")))
}

func (s *ResolverSuite) TestForceRefreshBypassesCache() {
	ctx := context.Background()
	_, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)

	s.Require().NoError(s.groups.SetGroupActive(s.audit.ID, false))

	cached, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	s.Contains(cached, "reports.export")

	fresh, err := s.resolver.GetUserPermissions(ctx, s.user, true)
	s.Require().NoError(err)
	s.Equal([]string{"users.delete", "users.view"}, fresh)

	// the forced read repopulated the cache
	again, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	s.Equal(fresh, again)
}

func (s *ResolverSuite) TestInvalidate() {
	ctx := context.Background()
	_, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)

	s.groups.RemoveMember(s.user, s.admins.ID)
	s.Require().NoError(s.resolver.Invalidate(ctx, s.user))

	perms, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	s.Equal([]string{"reports.export"}, perms)
}

func (s *ResolverSuite) TestInvalidateWithOverlappingGroupKeepsSet() {
	ctx := context.Background()
	before, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)

	overlap := models.Group{ID: id.GroupID(uuid.New()), Codename: "overlap", IsActive: true}
	s.groups.AddGroup(overlap)
	s.Require().NoError(s.groups.Grant(overlap.ID, s.view))
	s.Require().NoError(s.groups.Grant(overlap.ID, s.export))
	s.Require().NoError(s.groups.AddMember(s.user, overlap.ID))
	s.Require().NoError(s.resolver.Invalidate(ctx, s.user))

	after, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	s.Equal(before, after)
	s.Equal(int32(2), s.store.lists.Load())
}

func (s *ResolverSuite) TestPointChecks() {
	ctx := context.Background()

	s.Run("cold cache asks the store", func() {
		ok, err := s.resolver.HasPermission(ctx, s.user, "users.view")
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(int32(1), s.store.points.Load())
		s.False(s.server.Exists("permissions:user:" + s.user.String()))
	})

	s.Run("warm cache answers locally", func() {
		_, err := s.resolver.GetUserPermissions(ctx, s.user, false)
		s.Require().NoError(err)
		before := s.store.points.Load()

		ok, err := s.resolver.HasPermission(ctx, s.user, "users.admin")
		s.Require().NoError(err)
		s.False(ok)
		ok, err = s.resolver.HasAnyPermission(ctx, s.user, []string{"nope", "users.delete"})
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(before, s.store.points.Load())
	})

	s.Run("empty lists", func() {
		ok, err := s.resolver.HasAnyPermission(ctx, s.user, nil)
		s.Require().NoError(err)
		s.False(ok)
		ok, err = s.resolver.HasAllPermissions(ctx, s.user, []string{})
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("all requires every codename", func() {
		ok, err := s.resolver.HasAllPermissions(ctx, s.user, []string{"users.view", "reports.export"})
		s.Require().NoError(err)
		s.True(ok)
		ok, err = s.resolver.HasAllPermissions(ctx, s.user, []string{"users.view", "users.admin"})
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ResolverSuite) TestUserWithoutGroups() {
	perms, err := s.resolver.GetUserPermissions(context.Background(), id.UserID(uuid.New()), false)
	s.Require().NoError(err)
	s.NotNil(perms)
	s.Empty(perms)
}

func (s *ResolverSuite) TestCacheOutageFallsThrough() {
	ctx := context.Background()
	s.server.Close()

	perms, err := s.resolver.GetUserPermissions(ctx, s.user, false)
	s.Require().NoError(err)
	s.Len(perms, 3)
	s.Contains(s.logs.String(), "permission cache read failed")
	s.Contains(s.logs.String(), "permission cache write failed")

	ok, err := s.resolver.HasPermission(ctx, s.user, "users.delete")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ResolverSuite) TestCorruptCacheEntryIsIgnored() {
	s.Require().NoError(s.server.Set("permissions:user:"+s.user.String(), "{not json"))

	perms, err := s.resolver.GetUserPermissions(context.Background(), s.user, false)
	s.Require().NoError(err)
	s.Len(perms, 3)
	s.Contains(s.logs.String(), "discarding corrupt permission cache entry")
}

func (s *ResolverSuite) TestStoreErrorIsInternal() {
	s.store.err = errors.New("connection refused")

	_, err := s.resolver.GetUserPermissions(context.Background(), s.user, false)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.resolver.HasPermission(context.Background(), s.user, "users.view")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ResolverSuite) TestConcurrentMissesShareOneLoad() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perms, err := s.resolver.GetUserPermissions(ctx, s.user, false)
			s.NoError(err)
			s.Len(perms, 3)
		}()
	}
	wg.Wait()
	s.LessOrEqual(s.store.lists.Load(), int32(20))
	s.GreaterOrEqual(s.store.lists.Load(), int32(1))
}

func TestResolverWithoutCache(t *testing.T) {
	groups := permissionstore.NewInMemoryStore()
	r := NewResolver(groups, nil)
	perms, err := r.GetUserPermissions(context.Background(), id.UserID(uuid.New()), false)
	if err != nil || len(perms) != 0 {
		t.Fatalf("GetUserPermissions() = %v, %v", perms, err)
	}
	if err := r.Invalidate(context.Background(), id.UserID(uuid.New())); err != nil {
		t.Fatalf("Invalidate() = %v", err)
	}
}

func TestSharedLoadSurvivesCallerCancellation(t *testing.T) {
	groups := permissionstore.NewInMemoryStore()
	userID := id.UserID(uuid.New())
	staff := models.Group{ID: id.GroupID(uuid.New()), Codename: "staff", IsActive: true}
	view := models.Permission{ID: id.PermissionID(uuid.New()), Codename: "reports.view"}
	groups.AddGroup(staff)
	groups.AddPermission(view)
	require.NoError(t, groups.Grant(staff.ID, view.ID))
	require.NoError(t, groups.AddMember(userID, staff.ID))

	gated := &gatedStore{Store: groups, entered: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(gated, nil)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		perms []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		perms, err := r.GetUserPermissions(ctx, userID, false)
		done <- result{perms, err}
	}()

	<-gated.entered
	cancel()
	close(gated.release)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, []string{"reports.view"}, got.perms)
}
