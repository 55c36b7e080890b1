package xrecur

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

var (
	leaseInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	leaseDashRuns     = regexp.MustCompile(`-+`)
)

// DefaultClockSkew Lease 过期判断的时钟偏移容忍度，与 client-go leader election 一致。
const DefaultClockSkew = 2 * time.Second

const leaseManagedBy = "xrecur"

// K8sLockerOptions K8sLocker 配置。
type K8sLockerOptions struct {
	// Namespace 默认取 POD_NAMESPACE，否则 "default"。
	Namespace string
	// Identity 默认取 POD_NAME，否则 hostname:pid；作为 token 前缀。
	Identity string
	// Prefix Lease 名称前缀，默认 "xrecur-"。
	Prefix string
	// Client 默认使用 InClusterConfig 创建。
	Client kubernetes.Interface
	// ClockSkew 0 取默认值，负值表示不容忍偏移。
	ClockSkew time.Duration
	// Clock 判断过期与写入 renewTime 用的时钟，默认真实时钟。
	Clock clockwork.Clock
}

// K8sLocker 基于 coordination.k8s.io/v1 Lease 的锁，适合没有 Redis 的集群。
// ServiceAccount 需要 leases 的 get/list/create/update 权限。
type K8sLocker struct {
	client    kubernetes.Interface
	namespace string
	identity  string
	prefix    string
	clockSkew time.Duration
	clock     clockwork.Clock
}

// NewK8sLocker 创建 K8sLocker。
func NewK8sLocker(opts K8sLockerOptions) (*K8sLocker, error) {
	if opts.Namespace == "" {
		opts.Namespace = envOr("POD_NAMESPACE", "default")
	}
	if opts.Identity == "" {
		opts.Identity = envOr("POD_NAME", defaultIdentity())
	}
	if opts.Prefix == "" {
		opts.Prefix = "xrecur-"
	}
	switch {
	case opts.ClockSkew == 0:
		opts.ClockSkew = DefaultClockSkew
	case opts.ClockSkew < 0:
		opts.ClockSkew = 0
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	client := opts.Client
	if client == nil {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("xrecur: in-cluster config: %w", err)
		}
		if client, err = kubernetes.NewForConfig(cfg); err != nil {
			return nil, fmt.Errorf("xrecur: create k8s client: %w", err)
		}
	}

	return &K8sLocker{
		client:    client,
		namespace: opts.Namespace,
		identity:  opts.Identity,
		prefix:    opts.Prefix,
		clockSkew: opts.ClockSkew,
		clock:     opts.Clock,
	}, nil
}

// TryLock 实现 Locker：Lease 不存在时创建，过期或无持有者时接管。
// 并发创建或更新冲突视为被他人持有。
func (l *K8sLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	name := l.leaseName(key)
	token := l.identity + ":" + uuid.NewString()
	leases := l.client.CoordinationV1().Leases(l.namespace)

	lease, err := leases.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		lease = &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: l.namespace,
				Labels:    map[string]string{"app.kubernetes.io/managed-by": leaseManagedBy},
			},
		}
		l.claim(lease, token, ttl, true)
		if _, err := leases.Create(ctx, lease, metav1.CreateOptions{}); err != nil {
			if apierrors.IsAlreadyExists(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: create lease: %w", ErrLockUnavailable, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: get lease: %w", ErrLockUnavailable, err)
	default:
		if !l.available(lease) {
			return nil, nil
		}
		l.claim(lease, token, ttl, true)
		if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
			if apierrors.IsConflict(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: acquire lease: %w", ErrLockUnavailable, err)
		}
	}
	return &leaseHandle{locker: l, key: key, name: name, token: token}, nil
}

// Health 实现 LockerHealthChecker。
func (l *K8sLocker) Health(ctx context.Context) error {
	_, err := l.client.CoordinationV1().Leases(l.namespace).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("%w: list leases: %w", ErrLockUnavailable, err)
	}
	return nil
}

// Namespace 使用的命名空间。
func (l *K8sLocker) Namespace() string { return l.namespace }

// Identity 实例标识。
func (l *K8sLocker) Identity() string { return l.identity }

func (l *K8sLocker) claim(lease *coordinationv1.Lease, token string, ttl time.Duration, acquire bool) {
	now := metav1.NewMicroTime(l.clock.Now())
	secs := leaseSeconds(ttl)
	lease.Spec.HolderIdentity = &token
	lease.Spec.LeaseDurationSeconds = &secs
	lease.Spec.RenewTime = &now
	if acquire {
		lease.Spec.AcquireTime = &now
	}
}

// available 无持有者或已过期（renewTime + duration + skew 早于当前时间）。
// 自己的旧 token 同样不可重入。
func (l *K8sLocker) available(lease *coordinationv1.Lease) bool {
	spec := lease.Spec
	if spec.HolderIdentity == nil || *spec.HolderIdentity == "" {
		return true
	}
	if spec.RenewTime == nil || spec.LeaseDurationSeconds == nil {
		return true
	}
	expiry := spec.RenewTime.Add(time.Duration(*spec.LeaseDurationSeconds)*time.Second + l.clockSkew)
	return l.clock.Now().After(expiry)
}

// leaseSeconds Lease 以秒计，不足 1 秒按 1 秒。
func leaseSeconds(ttl time.Duration) int32 {
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return int32(min(max(secs, 1), math.MaxInt32))
}

func (l *K8sLocker) leaseName(key string) string {
	return l.prefix + sanitizeLeaseName(key, len(l.prefix))
}

// sanitizeLeaseName 转为合法的资源名片段，使 prefix+结果 不超过 63 字符。
// 清理改变了名称（含大小写）或发生截断时追加原名的 xxhash 前缀，避免 "a.b" 与 "a/b" 碰撞。
func sanitizeLeaseName(name string, prefixLen int) string {
	if name == "" {
		return ""
	}
	const (
		maxName = 63
		hashLen = 8
	)
	lowered := strings.ToLower(name)
	clean := leaseInvalidChars.ReplaceAllString(lowered, "-")
	clean = leaseDashRuns.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-")

	budget := max(maxName-prefixLen, 1)
	if clean == name && len(clean) <= budget {
		return clean
	}
	suffix := fmt.Sprintf("%016x", xxhash.Sum64String(name))[:hashLen]
	keep := max(budget-hashLen-1, 1)
	if len(clean) > keep {
		clean = strings.TrimRight(clean[:keep], "-")
	}
	if clean == "" {
		return suffix
	}
	return clean + "-" + suffix
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type leaseHandle struct {
	locker *K8sLocker
	key    string
	name   string
	token  string
}

// Unlock 清空持有者。Lease 已被删除视为成功。
func (h *leaseHandle) Unlock(ctx context.Context) error {
	leases := h.locker.client.CoordinationV1().Leases(h.locker.namespace)
	lease, err := leases.Get(ctx, h.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: get lease: %w", ErrLockUnavailable, err)
	}
	if !h.owns(lease) {
		return ErrLockNotHeld
	}
	lease.Spec.HolderIdentity = nil
	lease.Spec.AcquireTime = nil
	lease.Spec.RenewTime = nil
	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return ErrLockNotHeld
		}
		return fmt.Errorf("%w: release lease: %w", ErrLockUnavailable, err)
	}
	return nil
}

// Renew 刷新 renewTime 与时长。
func (h *leaseHandle) Renew(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	leases := h.locker.client.CoordinationV1().Leases(h.locker.namespace)
	lease, err := leases.Get(ctx, h.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return ErrLockNotHeld
	}
	if err != nil {
		return fmt.Errorf("%w: get lease: %w", ErrLockUnavailable, err)
	}
	if !h.owns(lease) {
		return ErrLockNotHeld
	}
	h.locker.claim(lease, h.token, ttl, false)
	if _, err := leases.Update(ctx, lease, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return ErrLockNotHeld
		}
		return fmt.Errorf("%w: renew lease: %w", ErrLockUnavailable, err)
	}
	return nil
}

func (h *leaseHandle) Key() string { return h.key }

func (h *leaseHandle) owns(lease *coordinationv1.Lease) bool {
	return lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity == h.token
}

var (
	_ Locker              = (*K8sLocker)(nil)
	_ LockerHealthChecker = (*K8sLocker)(nil)
	_ LockHandle          = (*leaseHandle)(nil)
)
