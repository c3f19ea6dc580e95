package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"futsal_notifier/internal/api"
	"futsal_notifier/internal/archive"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/push"
	"futsal_notifier/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRESTClient struct {
	mock.Mock
}

func (m *MockRESTClient) FetchNotifications(ctx context.Context, limit int) (*api.FetchResult, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.FetchResult), args.Error(1)
}

func (m *MockRESTClient) MarkAsRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRESTClient) MarkAllAsRead(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Permission(ctx context.Context) push.Permission {
	return m.Called(ctx).Get(0).(push.Permission)
}

func (m *MockNotifier) RequestPermission(ctx context.Context) push.Permission {
	return m.Called(ctx).Get(0).(push.Permission)
}

func (m *MockNotifier) Show(ctx context.Context, msg push.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// fakeLive behaves like the realtime session: mutations fire the change hook
// outside its own lock.
type fakeLive struct {
	mu        sync.Mutex
	items     []domain.Notification
	unread    int
	connected bool
	onChange  []func()
	perm      push.Permission
	cleared   int
}

func (f *fakeLive) Notifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, len(f.items))
	copy(out, f.items)
	return out
}

func (f *fakeLive) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

func (f *fakeLive) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLive) Status() ws.Status {
	if f.IsConnected() {
		return ws.StatusConnected
	}
	return ws.StatusDisconnected
}

func (f *fakeLive) MarkNotificationAsRead(id string) bool {
	f.mu.Lock()
	changed := false
	for i := range f.items {
		if f.items[i].ID == id && !f.items[i].Read {
			f.items[i].Read = true
			f.unread--
			changed = true
		}
	}
	f.mu.Unlock()
	if changed {
		f.fire()
	}
	return changed
}

func (f *fakeLive) MarkAllNotificationsAsRead() {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].Read = true
	}
	f.unread = 0
	f.mu.Unlock()
	f.fire()
}

func (f *fakeLive) ClearNotifications() {
	f.mu.Lock()
	f.items = nil
	f.unread = 0
	f.cleared++
	f.mu.Unlock()
	f.fire()
}

func (f *fakeLive) OnChange(fn func()) {
	f.mu.Lock()
	f.onChange = append(f.onChange, fn)
	f.mu.Unlock()
}

func (f *fakeLive) RequestNotificationPermission(context.Context) push.Permission {
	return f.perm
}

// deliver prepends n like a live push and fires the hook.
func (f *fakeLive) deliver(n domain.Notification) {
	f.mu.Lock()
	f.items = append([]domain.Notification{n}, f.items...)
	if !n.Read {
		f.unread++
	}
	f.mu.Unlock()
	f.fire()
}

func (f *fakeLive) fire() {
	f.mu.Lock()
	fns := append([]func(){}, f.onChange...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// recordingArchiver collects batches on a channel.
type recordingArchiver struct {
	batches chan []archive.Record
}

func (r *recordingArchiver) IndexBatch(_ context.Context, records []archive.Record) (int, error) {
	r.batches <- records
	return len(records), nil
}

func (r *recordingArchiver) Search(_ context.Context, userID, query string, limit int) ([]archive.Record, error) {
	return []archive.Record{{ID: "a1", UserID: userID, Title: query}}, nil
}

func (r *recordingArchiver) Enabled() bool { return true }

type providerFixture struct {
	rest     *MockRESTClient
	live     *fakeLive
	notifier *MockNotifier
	provider *Provider
}

func newProviderFixture(t *testing.T, opts Options, archiver archive.Archiver) *providerFixture {
	t.Helper()
	f := &providerFixture{
		rest:     new(MockRESTClient),
		live:     &fakeLive{perm: push.PermissionDefault},
		notifier: new(MockNotifier),
	}
	f.provider = NewProvider(f.rest, f.live, archiver, f.notifier, opts, zap.NewNop())
	return f
}

func note(id string, read bool) domain.Notification {
	return domain.Notification{ID: id, Type: domain.TypeNotification, Title: "t-" + id, Read: read}
}

func ids(items []domain.Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		out = append(out, n.ID)
	}
	return out
}

func TestProvider_SetUserSeedsFromREST(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false), note("r2", true)},
		UnreadCount:   1,
	}, nil).Once()

	f.provider.SetUser(context.Background(), "42")

	assert.Equal(t, []string{"r1", "r2"}, ids(f.provider.Notifications()))
	assert.Equal(t, 1, f.provider.UnreadCount())
	stats := f.provider.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Read)
	require.NotNil(t, stats.LastFetch)

	// Same user again does not refetch.
	f.provider.SetUser(context.Background(), "42")
	f.rest.AssertExpectations(t)
}

func TestProvider_LiveEntriesMergeWithoutDuplicates(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("n1", false), note("r2", false)},
		UnreadCount:   2,
	}, nil)

	f.provider.SetUser(context.Background(), "42")
	f.live.deliver(note("n1", false))
	f.live.deliver(note("n3", false))

	assert.Equal(t, []string{"n3", "n1", "r2"}, ids(f.provider.Notifications()))

	f.provider.RefreshNotifications(context.Background())
	assert.Equal(t, []string{"n3", "n1", "r2"}, ids(f.provider.Notifications()))
}

func TestProvider_MergeTruncatesToMaxItems(t *testing.T) {
	f := newProviderFixture(t, Options{FetchLimit: 10, MaxItems: 3}, nil)
	f.rest.On("FetchNotifications", mock.Anything, 10).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false), note("r2", false), note("r3", false)},
	}, nil)
	f.provider.SetUser(context.Background(), "42")

	f.live.deliver(note("l1", false))
	assert.Equal(t, []string{"l1", "r1", "r2"}, ids(f.provider.Notifications()))
}

func TestProvider_UnreadCountFollowsConnection(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:     true,
		UnreadCount: 7,
	}, nil)
	f.provider.SetUser(context.Background(), "42")

	assert.Equal(t, 7, f.provider.UnreadCount())

	f.live.mu.Lock()
	f.live.connected = true
	f.live.mu.Unlock()
	f.live.deliver(note("l1", false))

	assert.Equal(t, 1, f.provider.UnreadCount())
	assert.Equal(t, ws.StatusConnected, f.provider.ConnectionStatus())
	assert.True(t, f.provider.IsConnected())
}

func TestProvider_MarkAsReadWhileConnectedStaysLocal(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.live.connected = true
	f.live.deliver(note("l1", false))

	f.provider.MarkAsRead(context.Background(), "l1")

	n, ok := f.provider.GetNotificationByID("l1")
	require.True(t, ok)
	assert.True(t, n.Read)
	assert.Equal(t, 0, f.provider.UnreadCount())
	f.rest.AssertNotCalled(t, "MarkAsRead", mock.Anything, mock.Anything)
}

func TestProvider_MarkAsReadWhileConnectedPersistsWhenEnabled(t *testing.T) {
	opts := DefaultOptions()
	opts.PersistLiveReads = true
	f := newProviderFixture(t, opts, nil)
	f.live.connected = true
	f.live.deliver(note("l1", false))
	f.rest.On("MarkAsRead", mock.Anything, "l1").Return(errors.New("offline")).Once()

	f.provider.MarkAsRead(context.Background(), "l1")

	n, _ := f.provider.GetNotificationByID("l1")
	assert.True(t, n.Read, "local read survives a failed persist")
	f.rest.AssertExpectations(t)
}

func TestProvider_MarkAsReadOfflineGoesThroughBackend(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false), note("r2", false)},
		UnreadCount:   2,
	}, nil)
	f.provider.SetUser(context.Background(), "42")

	f.rest.On("MarkAsRead", mock.Anything, "r1").Return(nil).Once()
	f.provider.MarkAsRead(context.Background(), "r1")

	n, _ := f.provider.GetNotificationByID("r1")
	assert.True(t, n.Read)
	assert.Equal(t, 1, f.provider.UnreadCount())

	f.rest.On("MarkAsRead", mock.Anything, "r2").Return(errors.New("boom")).Once()
	f.provider.MarkAsRead(context.Background(), "r2")

	n, _ = f.provider.GetNotificationByID("r2")
	assert.False(t, n.Read, "failed backend mark leaves state unchanged")
	assert.Equal(t, 1, f.provider.UnreadCount())
	f.rest.AssertExpectations(t)
}

func TestProvider_MarkAllAsRead(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false), note("r2", true), note("r3", false)},
		UnreadCount:   2,
	}, nil)
	f.provider.SetUser(context.Background(), "42")

	f.rest.On("MarkAllAsRead", mock.Anything, []string{"r1", "r3"}).Return(nil).Once()
	f.provider.MarkAllAsRead(context.Background())

	assert.Empty(t, f.provider.GetUnreadNotifications())
	assert.Equal(t, 0, f.provider.UnreadCount())
	f.rest.AssertExpectations(t)
}

func TestProvider_MarkAllAsReadConnected(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.live.connected = true
	f.live.deliver(note("l1", false))
	f.live.deliver(note("l2", false))

	f.provider.MarkAllAsRead(context.Background())

	assert.Empty(t, f.provider.GetUnreadNotifications())
	assert.Equal(t, 0, f.provider.UnreadCount())
	f.rest.AssertNotCalled(t, "MarkAllAsRead", mock.Anything, mock.Anything)
}

func TestProvider_PollSkippedWhileConnected(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{Success: true}, nil).Once()
	f.provider.SetUser(context.Background(), "42")

	f.live.mu.Lock()
	f.live.connected = true
	f.live.mu.Unlock()
	f.provider.Poll(context.Background())
	f.rest.AssertNumberOfCalls(t, "FetchNotifications", 1)

	f.live.mu.Lock()
	f.live.connected = false
	f.live.mu.Unlock()
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{Success: true}, nil).Once()
	f.provider.Poll(context.Background())
	f.rest.AssertNumberOfCalls(t, "FetchNotifications", 2)
}

func TestProvider_PollWithoutUserDoesNothing(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.provider.Poll(context.Background())
	f.rest.AssertNotCalled(t, "FetchNotifications", mock.Anything, mock.Anything)
}

func TestProvider_FetchFailureKeepsState(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false)},
		UnreadCount:   1,
	}, nil).Once()
	f.provider.SetUser(context.Background(), "42")
	before := f.provider.Stats().LastFetch

	f.rest.On("FetchNotifications", mock.Anything, 50).Return(nil, errors.New("network down")).Once()
	f.provider.RefreshNotifications(context.Background())

	assert.Equal(t, []string{"r1"}, ids(f.provider.Notifications()))
	assert.Equal(t, 1, f.provider.UnreadCount())
	assert.Equal(t, before, f.provider.Stats().LastFetch)
}

func TestProvider_UserSwitchDropsPreviousList(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false)},
	}, nil).Once()
	f.provider.SetUser(context.Background(), "42")

	f.provider.SetUser(context.Background(), "")
	assert.Empty(t, f.provider.Notifications())
	assert.Nil(t, f.provider.Stats().LastFetch)
}

func TestProvider_FetchForPreviousUserIsDropped(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	started := make(chan struct{})
	release := make(chan struct{})

	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("a-1", false)},
		UnreadCount:   1,
	}, nil).Once()
	f.rest.On("FetchNotifications", mock.Anything, 50).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("a-secret", false)},
		UnreadCount:   7,
	}, nil).Once()
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("b-1", false)},
		UnreadCount:   1,
	}, nil).Once()

	f.provider.SetUser(context.Background(), "A")

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.provider.Poll(context.Background())
	}()
	<-started

	f.provider.SetUser(context.Background(), "B")
	require.Equal(t, []string{"b-1"}, ids(f.provider.Notifications()))

	close(release)
	<-done

	assert.Equal(t, []string{"b-1"}, ids(f.provider.Notifications()))
	assert.Equal(t, 1, f.provider.UnreadCount())
	f.rest.AssertExpectations(t)
}

func TestProvider_ClearAllAlsoClearsLive(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.live.deliver(note("l1", false))
	require.Len(t, f.provider.Notifications(), 1)

	f.provider.ClearAllNotifications()

	assert.Empty(t, f.provider.Notifications())
	assert.Equal(t, 1, f.live.cleared)
	f.rest.AssertNotCalled(t, "MarkAllAsRead", mock.Anything, mock.Anything)
}

func TestProvider_Filters(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	booking := domain.Notification{ID: "b1", Type: domain.TypeBookingUpdate}
	f.live.deliver(note("n1", true))
	f.live.deliver(booking)

	assert.Equal(t, []string{"b1"}, ids(f.provider.GetNotificationsByType(domain.TypeBookingUpdate)))
	assert.Equal(t, []string{"b1"}, ids(f.provider.GetUnreadNotifications()))
	assert.Empty(t, f.provider.GetNotificationsByType(domain.TypePaymentUpdate))
	_, ok := f.provider.GetNotificationByID("missing")
	assert.False(t, ok)
}

func TestProvider_ShowBrowserNotification(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	n := domain.Notification{ID: "s1", Title: "Maintenance", Message: "Tonight", Priority: domain.PriorityUrgent}

	f.notifier.On("Permission", mock.Anything).Return(push.PermissionDenied).Once()
	err := f.provider.ShowBrowserNotification(context.Background(), n)
	assert.ErrorIs(t, err, push.ErrPermissionNotGranted)

	f.notifier.On("Permission", mock.Anything).Return(push.PermissionGranted).Once()
	f.notifier.On("Show", mock.Anything, push.Message{
		Tag: "s1", Title: "Maintenance", Body: "Tonight", RequireInteraction: true,
	}).Return(nil).Once()
	assert.NoError(t, f.provider.ShowBrowserNotification(context.Background(), n))
	f.notifier.AssertExpectations(t)
}

func TestProvider_RequestPermissionDelegatesToLive(t *testing.T) {
	f := newProviderFixture(t, DefaultOptions(), nil)
	f.live.perm = push.PermissionGranted
	assert.Equal(t, push.PermissionGranted, f.provider.RequestNotificationPermission(context.Background()))
}

func TestProvider_ArchivesEachNotificationOnce(t *testing.T) {
	rec := &recordingArchiver{batches: make(chan []archive.Record, 8)}
	f := newProviderFixture(t, DefaultOptions(), rec)
	f.rest.On("FetchNotifications", mock.Anything, 50).Return(&api.FetchResult{
		Success:       true,
		Notifications: []domain.Notification{note("r1", false)},
	}, nil)
	f.provider.SetUser(context.Background(), "42")

	select {
	case batch := <-rec.batches:
		require.Len(t, batch, 1)
		assert.Equal(t, "r1", batch[0].ID)
		assert.Equal(t, "42", batch[0].UserID)
		assert.Equal(t, archive.SourceREST, batch[0].Source)
	case <-time.After(time.Second):
		t.Fatal("rest batch was not archived")
	}

	f.live.deliver(note("l1", false))
	select {
	case batch := <-rec.batches:
		require.Len(t, batch, 1)
		assert.Equal(t, "l1", batch[0].ID)
		assert.Equal(t, archive.SourceLive, batch[0].Source)
	case <-time.After(time.Second):
		t.Fatal("live batch was not archived")
	}

	f.provider.RefreshNotifications(context.Background())
	select {
	case batch := <-rec.batches:
		t.Fatalf("unexpected re-archive of %d records", len(batch))
	case <-time.After(50 * time.Millisecond):
	}

	got, err := f.provider.SearchArchive(context.Background(), "court", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].UserID)
}
