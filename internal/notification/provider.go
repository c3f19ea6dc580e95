package notification

import (
	"context"
	"sync"
	"time"

	"futsal_notifier/internal/api"
	"futsal_notifier/internal/archive"
	"futsal_notifier/internal/config"
	"futsal_notifier/internal/domain"
	"futsal_notifier/internal/push"
	"futsal_notifier/internal/ws"

	"go.uber.org/zap"
)

// RESTClient is the backend notification feed.
type RESTClient interface {
	FetchNotifications(ctx context.Context, limit int) (*api.FetchResult, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context, ids []string) error
}

// LiveSource is the push-fed buffer (the realtime session).
type LiveSource interface {
	Notifications() []domain.Notification
	UnreadCount() int
	IsConnected() bool
	Status() ws.Status
	MarkNotificationAsRead(id string) bool
	MarkAllNotificationsAsRead()
	ClearNotifications()
	OnChange(fn func())
	RequestNotificationPermission(ctx context.Context) push.Permission
}

// Stats is derived from current state on every call.
type Stats struct {
	Total            int        `json:"total"`
	Unread           int        `json:"unread"`
	Read             int        `json:"read"`
	LastFetch        *time.Time `json:"last_fetch"`
	ConnectionStatus ws.Status  `json:"connection_status"`
}

// Accessor is the consumer-facing notification API.
type Accessor interface {
	Notifications() []domain.Notification
	UnreadCount() int
	IsConnected() bool
	ConnectionStatus() ws.Status
	MarkAsRead(ctx context.Context, id string)
	MarkAllAsRead(ctx context.Context)
	ClearAllNotifications()
	RefreshNotifications(ctx context.Context)
	GetNotificationByID(id string) (domain.Notification, bool)
	GetNotificationsByType(t domain.NotificationType) []domain.Notification
	GetUnreadNotifications() []domain.Notification
	ShowBrowserNotification(ctx context.Context, n domain.Notification) error
	RequestNotificationPermission(ctx context.Context) push.Permission
	Stats() Stats
	SearchArchive(ctx context.Context, query string, limit int) ([]archive.Record, error)
}

type Options struct {
	FetchLimit int
	MaxItems   int
	// PersistLiveReads also sends reads made while connected to the backend.
	PersistLiveReads bool
}

func DefaultOptions() Options {
	return Options{FetchLimit: 50, MaxItems: 50}
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FetchLimit:       cfg.NotificationLimit,
		MaxItems:         cfg.NotificationBufferSize,
		PersistLiveReads: cfg.PersistLiveReads,
	}
}

// Provider merges the live buffer with the REST feed into one list.
type Provider struct {
	rest     RESTClient
	live     LiveSource
	archiver archive.Archiver
	notifier push.Notifier
	opts     Options
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	userID     string
	gen        uint64 // bumped on every user switch
	items      []domain.Notification
	restUnread int
	lastFetch  time.Time
	archived   map[string]struct{}
}

// NewProvider registers the provider on the live source's change hook.
func NewProvider(rest RESTClient, live LiveSource, archiver archive.Archiver, notifier push.Notifier, opts Options, logger *zap.Logger) *Provider {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultOptions().MaxItems
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultOptions().FetchLimit
	}
	if archiver == nil {
		archiver = archive.NopArchiver{}
	}
	p := &Provider{
		rest:     rest,
		live:     live,
		archiver: archiver,
		notifier: notifier,
		opts:     opts,
		logger:   logger.Named("notification"),
		now:      time.Now,
		archived: make(map[string]struct{}),
	}
	live.OnChange(p.onLiveChange)
	return p
}

var _ Accessor = (*Provider)(nil)

// SetUser switches the feed to userID. A changed identity drops the previous
// user's list and seeds from REST; an empty id only clears.
func (p *Provider) SetUser(ctx context.Context, userID string) {
	p.mu.Lock()
	if p.userID == userID {
		p.mu.Unlock()
		return
	}
	p.userID = userID
	p.gen++
	p.items = nil
	p.restUnread = 0
	p.lastFetch = time.Time{}
	p.archived = make(map[string]struct{})
	p.mu.Unlock()

	if userID != "" {
		p.logger.Info("Seeding notifications for user", zap.String("user_id", userID))
		p.fetch(ctx)
	}
}

// Poll is the fallback tick. It does nothing while the live channel is up.
func (p *Provider) Poll(ctx context.Context) {
	if p.live.IsConnected() {
		return
	}
	p.mu.Lock()
	active := p.userID != ""
	p.mu.Unlock()
	if !active {
		return
	}
	p.fetch(ctx)
}

func (p *Provider) RefreshNotifications(ctx context.Context) {
	p.fetch(ctx)
}

// fetch replaces the list with the REST feed and re-applies the live buffer.
// Failures keep the previous state.
func (p *Provider) fetch(ctx context.Context) {
	p.mu.Lock()
	gen, userID := p.gen, p.userID
	p.mu.Unlock()

	res, err := p.rest.FetchNotifications(ctx, p.opts.FetchLimit)
	if err != nil {
		p.logger.Warn("Failed to fetch notifications, keeping previous state", zap.Error(err))
		return
	}
	live := p.live.Notifications()

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		p.logger.Debug("Dropping feed fetched for a previous user", zap.String("user_id", userID))
		return
	}
	p.items = truncate(res.Notifications, p.opts.MaxItems)
	p.restUnread = res.UnreadCount
	p.lastFetch = p.now()
	restNew := p.unarchivedLocked(p.items)
	p.items = mergeLive(p.items, live, p.opts.MaxItems)
	liveNew := p.unarchivedLocked(live)
	p.mu.Unlock()

	p.logger.Debug("Notifications fetched", zap.Int("count", len(res.Notifications)), zap.Int("unread", res.UnreadCount))
	p.archive(userID, restNew, archive.SourceREST)
	p.archive(userID, liveNew, archive.SourceLive)
}

func (p *Provider) onLiveChange() {
	live := p.live.Notifications()
	p.mu.Lock()
	p.items = mergeLive(p.items, live, p.opts.MaxItems)
	fresh := p.unarchivedLocked(live)
	userID := p.userID
	p.mu.Unlock()
	p.archive(userID, fresh, archive.SourceLive)
}

// mergeLive keeps existing entries in place and prepends unseen live entries
// in live order, then truncates.
func mergeLive(existing, live []domain.Notification, max int) []domain.Notification {
	seen := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		seen[n.ID] = struct{}{}
	}
	var unseen []domain.Notification
	for _, n := range live {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		unseen = append(unseen, n)
	}
	if len(unseen) == 0 {
		return existing
	}
	merged := make([]domain.Notification, 0, len(unseen)+len(existing))
	merged = append(merged, unseen...)
	merged = append(merged, existing...)
	return truncate(merged, max)
}

func truncate(items []domain.Notification, max int) []domain.Notification {
	if len(items) > max {
		items = items[:max]
	}
	out := make([]domain.Notification, len(items))
	copy(out, items)
	return out
}

func (p *Provider) unarchivedLocked(items []domain.Notification) []domain.Notification {
	if !p.archiver.Enabled() {
		return nil
	}
	var out []domain.Notification
	for _, n := range items {
		if _, ok := p.archived[n.ID]; ok {
			continue
		}
		p.archived[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (p *Provider) archive(userID string, items []domain.Notification, src archive.Source) {
	if len(items) == 0 {
		return
	}
	records := make([]archive.Record, 0, len(items))
	for _, n := range items {
		records = append(records, archive.FromNotification(userID, n, src))
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := p.archiver.IndexBatch(ctx, records); err != nil {
			p.logger.Warn("Failed to archive notifications", zap.Int("count", len(records)), zap.Error(err))
		}
	}()
}

// Notifications returns the merged list.
func (p *Provider) Notifications() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Notification, len(p.items))
	copy(out, p.items)
	return out
}

// UnreadCount prefers the live counter while connected.
func (p *Provider) UnreadCount() int {
	if p.live.IsConnected() {
		return p.live.UnreadCount()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restUnread
}

func (p *Provider) IsConnected() bool { return p.live.IsConnected() }

func (p *Provider) ConnectionStatus() ws.Status { return p.live.Status() }

// MarkAsRead marks locally through the live buffer while connected, and
// through the backend otherwise. Backend failures are logged and leave the
// state unchanged.
func (p *Provider) MarkAsRead(ctx context.Context, id string) {
	if p.live.IsConnected() {
		p.live.MarkNotificationAsRead(id)
		p.mirrorRead(id, false)
		if p.opts.PersistLiveReads {
			if err := p.rest.MarkAsRead(ctx, id); err != nil {
				p.logger.Warn("Failed to persist live read", zap.String("id", id), zap.Error(err))
			}
		}
		return
	}

	if err := p.rest.MarkAsRead(ctx, id); err != nil {
		p.logger.Warn("Failed to mark notification as read", zap.String("id", id), zap.Error(err))
		return
	}
	p.mirrorRead(id, true)
}

func (p *Provider) mirrorRead(id string, restPath bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		if p.items[i].ID != id {
			continue
		}
		if !p.items[i].Read {
			p.items[i].Read = true
			if restPath && p.restUnread > 0 {
				p.restUnread--
			}
		}
		return
	}
}

func (p *Provider) MarkAllAsRead(ctx context.Context) {
	ids := p.unreadIDs()

	if p.live.IsConnected() {
		p.live.MarkAllNotificationsAsRead()
		p.mirrorAllRead(false)
		if p.opts.PersistLiveReads && len(ids) > 0 {
			if err := p.rest.MarkAllAsRead(ctx, ids); err != nil {
				p.logger.Warn("Failed to persist live reads", zap.Int("count", len(ids)), zap.Error(err))
			}
		}
		return
	}

	if len(ids) > 0 {
		if err := p.rest.MarkAllAsRead(ctx, ids); err != nil {
			p.logger.Warn("Failed to mark all notifications as read", zap.Int("count", len(ids)), zap.Error(err))
			return
		}
	}
	p.mirrorAllRead(true)
}

func (p *Provider) unreadIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for _, n := range p.items {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (p *Provider) mirrorAllRead(restPath bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.items {
		p.items[i].Read = true
	}
	if restPath {
		p.restUnread = 0
	}
}

// ClearAllNotifications clears local state only; nothing is sent to the backend.
func (p *Provider) ClearAllNotifications() {
	p.mu.Lock()
	p.items = nil
	p.restUnread = 0
	p.mu.Unlock()
	p.live.ClearNotifications()
}

func (p *Provider) GetNotificationByID(id string) (domain.Notification, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.items {
		if n.ID == id {
			return n, true
		}
	}
	return domain.Notification{}, false
}

func (p *Provider) GetNotificationsByType(t domain.NotificationType) []domain.Notification {
	return p.filter(func(n domain.Notification) bool { return n.Type == t })
}

func (p *Provider) GetUnreadNotifications() []domain.Notification {
	return p.filter(func(n domain.Notification) bool { return !n.Read })
}

func (p *Provider) filter(keep func(domain.Notification) bool) []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []domain.Notification{}
	for _, n := range p.items {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// ShowBrowserNotification surfaces n on the platform if permission is granted.
func (p *Provider) ShowBrowserNotification(ctx context.Context, n domain.Notification) error {
	if p.notifier.Permission(ctx) != push.PermissionGranted {
		return push.ErrPermissionNotGranted
	}
	return p.notifier.Show(ctx, push.Message{
		Tag:                n.ID,
		Title:              n.Title,
		Body:               n.Message,
		RequireInteraction: n.Priority == domain.PriorityUrgent,
	})
}

func (p *Provider) RequestNotificationPermission(ctx context.Context) push.Permission {
	return p.live.RequestNotificationPermission(ctx)
}

func (p *Provider) Stats() Stats {
	unread := p.UnreadCount()
	status := p.live.Status()

	p.mu.Lock()
	defer p.mu.Unlock()
	read := 0
	for _, n := range p.items {
		if n.Read {
			read++
		}
	}
	s := Stats{
		Total:            len(p.items),
		Unread:           unread,
		Read:             read,
		ConnectionStatus: status,
	}
	if !p.lastFetch.IsZero() {
		lf := p.lastFetch
		s.LastFetch = &lf
	}
	return s
}

// SearchArchive queries the current user's archived notifications.
func (p *Provider) SearchArchive(ctx context.Context, query string, limit int) ([]archive.Record, error) {
	p.mu.Lock()
	userID := p.userID
	p.mu.Unlock()
	return p.archiver.Search(ctx, userID, query, limit)
}
