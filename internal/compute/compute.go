// Package compute implements the Compute Adapter (C2) against a
// Kubernetes cluster: the closest available analogue to the Nova compute
// plane the source material was built against. Nodes stand in for
// hypervisors/compute hosts, and StatefulSet-managed Pods stand in for
// instances, since a StatefulSet pod keeps its name across an eviction and
// reschedule the way a Nova instance keeps its instance_id across a cold
// migration — a Deployment pod would get an entirely new generated name
// instead.
package compute

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/session"
)

// floatingIPLabel marks a pod as HA-sensitive, the nearest Kubernetes
// analogue to a Nova instance carrying a floating IP: there is no
// per-pod floating IP concept, so a label stands in for whatever
// signals a workload as disruption-sensitive in a given cluster.
const floatingIPLabel = "fenix.io/floating-ip"

// Adapter satisfies session.ComputeAdapter against a live cluster. It
// holds kubernetes.Interface/metricsclient.Interface rather than the
// concrete clientsets so tests can substitute the fake clientsets from
// k8s.io/client-go/kubernetes/fake.
type Adapter struct {
	clientset kubernetes.Interface
	metrics   metricsclient.Interface
}

// New builds an Adapter, preferring in-cluster config and falling back to
// KUBECONFIG/~/.kube/config, matching the source material's client setup.
func New() (*Adapter, error) {
	config, err := restConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}

	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create metrics client: %w", err)
	}

	return &Adapter{clientset: clientset, metrics: metrics}, nil
}

// NewForTesting builds an Adapter directly over the given clientsets,
// typically the fake implementations from k8s.io/client-go/kubernetes/fake
// and k8s.io/metrics/pkg/client/clientset/versioned/fake.
func NewForTesting(clientset kubernetes.Interface, metrics metricsclient.Interface) *Adapter {
	return &Adapter{clientset: clientset, metrics: metrics}
}

func restConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// ListServices reports the schedulable state of every node as a service,
// mirroring Nova's nova-compute service list. binary is accepted for
// interface parity with the source material's list_services(binary) but
// is not meaningful for nodes, which run a single kubelet.
func (a *Adapter) ListServices(ctx context.Context, binary string) ([]session.ServiceInfo, error) {
	nodes, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	out := make([]session.ServiceInfo, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		status := "enabled"
		if n.Spec.Unschedulable {
			status = "disabled"
		}
		out = append(out, session.ServiceInfo{Host: n.Name, Status: status, ID: n.Name})
	}
	return out, nil
}

// ListServers returns every StatefulSet-managed pod, across all
// namespaces, as a server.
func (a *Adapter) ListServers(ctx context.Context) ([]session.ServerInfo, error) {
	pods, err := a.clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	out := make([]session.ServerInfo, 0, len(pods.Items))
	for _, p := range pods.Items {
		if !isStatefulSetPod(&p) {
			continue
		}
		out = append(out, toServerInfo(&p))
	}
	return out, nil
}

// ServerGet returns the current view of one server, id being
// "namespace/name".
func (a *Adapter) ServerGet(ctx context.Context, id string) (*session.ServerInfo, error) {
	ns, name, err := splitID(id)
	if err != nil {
		return nil, err
	}
	pod, err := a.clientset.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			// Evicted and not yet rescheduled by its StatefulSet controller;
			// report as still in flight rather than erroring the poll loop.
			return &session.ServerInfo{ID: id, Name: name, VMState: "building"}, nil
		}
		return nil, fmt.Errorf("get pod %s: %w", id, err)
	}
	info := toServerInfo(pod)
	return &info, nil
}

func toServerInfo(p *corev1.Pod) session.ServerInfo {
	addrs := map[string][]session.Address{}
	if p.Status.PodIP != "" {
		addrs[p.Namespace] = []session.Address{{Addr: p.Status.PodIP, Type: "fixed"}}
		if p.Labels[floatingIPLabel] == "true" {
			addrs[p.Namespace] = append(addrs[p.Namespace], session.Address{Addr: p.Status.PodIP, Type: "floating"})
		}
	}

	return session.ServerInfo{
		ID:        p.Namespace + "/" + p.Name,
		Name:      p.Name,
		ProjectID: p.Namespace,
		Host:      p.Spec.NodeName,
		VMState:   vmState(p),
		Addresses: addrs,
	}
}

func vmState(p *corev1.Pod) string {
	if p.DeletionTimestamp != nil {
		return "deleting"
	}
	switch p.Status.Phase {
	case corev1.PodRunning:
		return "resized"
	case corev1.PodFailed:
		return "error"
	case corev1.PodSucceeded:
		return "resized"
	default:
		return "building"
	}
}

func isStatefulSetPod(p *corev1.Pod) bool {
	for _, o := range p.OwnerReferences {
		if o.Kind == "StatefulSet" {
			return true
		}
	}
	return false
}

func splitID(id string) (ns, name string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed server id %q, want namespace/name", id)
	}
	return parts[0], parts[1], nil
}

// ListHypervisors reports each node's vcpu capacity and current usage, via
// the metrics API.
func (a *Adapter) ListHypervisors(ctx context.Context) ([]session.HypervisorInfo, error) {
	nodes, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	usage := map[string]int64{}
	if metricsList, err := a.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{}); err != nil {
		logger.Compute().Warn().Err(err).Msg("metrics-server unavailable, reporting zero usage")
	} else {
		for _, m := range metricsList.Items {
			usage[m.Name] = m.Usage.Cpu().MilliValue()
		}
	}

	out := make([]session.HypervisorInfo, 0, len(nodes.Items))
	for _, n := range nodes.Items {
		capMilli := n.Status.Capacity.Cpu().MilliValue()
		out = append(out, session.HypervisorInfo{
			Hostname:  n.Name,
			VCPUs:     int(capMilli / 1000),
			VCPUsUsed: int(usage[n.Name] / 1000),
		})
	}
	return out, nil
}

// DisableService cordons the node (sets it unschedulable), the Kubernetes
// analogue of nova-compute's disable_service.
func (a *Adapter) DisableService(ctx context.Context, hostOrID, reason string) error {
	node, err := a.clientset.CoreV1().Nodes().Get(ctx, hostOrID, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get node %s: %w", hostOrID, err)
	}
	node.Spec.Unschedulable = true
	if _, err := a.clientset.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("cordon node %s: %w", hostOrID, err)
	}
	logger.Compute().Info().Str("host", hostOrID).Str("reason", reason).Msg("node cordoned")
	return nil
}

// EnableService uncordons the node.
func (a *Adapter) EnableService(ctx context.Context, hostOrID string) error {
	node, err := a.clientset.CoreV1().Nodes().Get(ctx, hostOrID, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get node %s: %w", hostOrID, err)
	}
	node.Spec.Unschedulable = false
	if _, err := a.clientset.CoreV1().Nodes().Update(ctx, node, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("uncordon node %s: %w", hostOrID, err)
	}
	logger.Compute().Info().Str("host", hostOrID).Msg("node uncordoned")
	return nil
}

// ServerMigrate evicts the pod, letting its StatefulSet controller
// reschedule it elsewhere once the node is cordoned. A malformed id is
// reported as session.ErrBadRequest so the workflow's bounded retry
// applies, matching a Nova migrate rejected as a bad request.
func (a *Adapter) ServerMigrate(ctx context.Context, id string) error {
	ns, name, err := splitID(id)
	if err != nil {
		return fmt.Errorf("%w: %s", session.ErrBadRequest, err)
	}

	grace := int64(30)
	err = a.clientset.CoreV1().Pods(ns).Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("evict pod %s: %w", id, err)
	}
	return nil
}

// ServerConfirmResize has no Kubernetes-side action: the StatefulSet
// controller has already rescheduled the pod by the time a caller sees
// VMState "resized". It exists for interface parity with the migrate
// sub-protocol's confirm step.
func (a *Adapter) ServerConfirmResize(ctx context.Context, id string) error {
	return nil
}
