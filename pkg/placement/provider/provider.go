/*
Copyright 2024 The KCP Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package provider discovers where services run in a Kubernetes cluster and
// moves them by pinning their deployments to a node.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

const (
	// KnativeServiceLabel selects the pods of a Knative service.
	KnativeServiceLabel = "serving.knative.dev/service"

	// AppLabel selects the pods of a plain deployment.
	AppLabel = "app"

	// DefaultPollInterval is how often readiness is checked.
	DefaultPollInterval = 2 * time.Second
)

// Interface is the cluster-facing side of the optimizer.
type Interface interface {
	// GetPodMapping returns service -> node -> running pods. Every requested
	// service is present in the result, possibly with no nodes.
	GetPodMapping(ctx context.Context, services []string) (topology.PlacementMap, error)

	// GetInternalIPMapping returns node -> InternalIP.
	GetInternalIPMapping(ctx context.Context) (map[string]string, error)

	// GetNodes returns the cluster node names, sorted.
	GetNodes(ctx context.Context) ([]string, error)

	// CurrentNode returns the node running the first pod of app, or "" if none.
	CurrentNode(ctx context.Context, app string) (string, error)

	// PlaceOn pins deployment to node and restarts its pods.
	PlaceOn(ctx context.Context, deployment, node string) error

	// WaitForReady blocks until a pod of app is running and ready.
	WaitForReady(ctx context.Context, app string, timeout time.Duration) error
}

// KubernetesProvider implements Interface on top of client-go.
type KubernetesProvider struct {
	client       kubernetes.Interface
	namespace    string
	pollInterval time.Duration
}

var _ Interface = &KubernetesProvider{}

// NewKubernetesProvider creates a provider scoped to namespace.
func NewKubernetesProvider(client kubernetes.Interface, namespace string) *KubernetesProvider {
	return &KubernetesProvider{
		client:       client,
		namespace:    namespace,
		pollInterval: DefaultPollInterval,
	}
}

// NewForConfig builds a clientset from config and wraps it in a provider.
func NewForConfig(config *rest.Config, namespace string) (*KubernetesProvider, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return NewKubernetesProvider(clientset, namespace), nil
}

// WithPollInterval overrides how often WaitForReady checks pod status.
func (p *KubernetesProvider) WithPollInterval(d time.Duration) *KubernetesProvider {
	p.pollInterval = d
	return p
}

func (p *KubernetesProvider) listPods(ctx context.Context, key, value string) ([]corev1.Pod, error) {
	selector := labels.SelectorFromSet(labels.Set{key: value}).String()
	list, err := p.client.CoreV1().Pods(p.namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods with %s: %w", selector, err)
	}
	return list.Items, nil
}

// servicePods lists the pods of a Knative service, falling back to the app
// label when the service is not managed by Knative.
func (p *KubernetesProvider) servicePods(ctx context.Context, service string) ([]corev1.Pod, error) {
	pods, err := p.listPods(ctx, KnativeServiceLabel, service)
	if err != nil {
		return nil, err
	}
	if len(pods) > 0 {
		return pods, nil
	}
	return p.listPods(ctx, AppLabel, service)
}

// GetPodMapping implements Interface. Only Running pods that are bound to a
// node are counted.
func (p *KubernetesProvider) GetPodMapping(ctx context.Context, services []string) (topology.PlacementMap, error) {
	logger := klog.FromContext(ctx)
	pm := topology.PlacementMap{}

	for _, service := range services {
		pods, err := p.servicePods(ctx, service)
		if err != nil {
			return nil, fmt.Errorf("failed to map pods of service %s: %w", service, err)
		}

		pm.Ensure(service)
		sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
		for _, pod := range pods {
			if pod.Status.Phase != corev1.PodRunning || pod.Spec.NodeName == "" {
				continue
			}
			pm.Add(service, pod.Spec.NodeName, pod.Name)
		}
		logger.V(5).Info("mapped service pods", "service", service, "nodes", pm.NodesOf(service), "pods", pm.PodCount(service))
	}

	return pm, nil
}

// GetInternalIPMapping implements Interface.
func (p *KubernetesProvider) GetInternalIPMapping(ctx context.Context) (map[string]string, error) {
	nodes, err := p.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	ips := make(map[string]string, len(nodes.Items))
	for _, node := range nodes.Items {
		for _, addr := range node.Status.Addresses {
			if addr.Type == corev1.NodeInternalIP {
				ips[node.Name] = addr.Address
			}
		}
	}
	return ips, nil
}

// GetNodes implements Interface.
func (p *KubernetesProvider) GetNodes(ctx context.Context) ([]string, error) {
	nodes, err := p.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	names := make([]string, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		names = append(names, node.Name)
	}
	sort.Strings(names)
	return names, nil
}

// CurrentNode implements Interface.
func (p *KubernetesProvider) CurrentNode(ctx context.Context, app string) (string, error) {
	pods, err := p.listPods(ctx, AppLabel, app)
	if err != nil {
		return "", err
	}
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
	for _, pod := range pods {
		if pod.Spec.NodeName != "" {
			return pod.Spec.NodeName, nil
		}
	}
	return "", nil
}

// nodeAffinityPatch pins a pod template to a single host. Only the affinity is
// typed; the typed Deployment would serialize its required fields as null.
func nodeAffinityPatch(node string) ([]byte, error) {
	affinity := &corev1.Affinity{
		NodeAffinity: &corev1.NodeAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
				NodeSelectorTerms: []corev1.NodeSelectorTerm{{
					MatchExpressions: []corev1.NodeSelectorRequirement{{
						Key:      corev1.LabelHostname,
						Operator: corev1.NodeSelectorOpIn,
						Values:   []string{node},
					}},
				}},
			},
		},
	}
	patch := map[string]interface{}{
		"spec": map[string]interface{}{
			"template": map[string]interface{}{
				"spec": map[string]interface{}{
					"affinity": affinity,
				},
			},
		},
	}
	return json.Marshal(patch)
}

// PlaceOn implements Interface. The deployment's pod template gets a required
// node affinity on kubernetes.io/hostname, then existing pods are deleted so
// they are rescheduled onto node.
func (p *KubernetesProvider) PlaceOn(ctx context.Context, deployment, node string) error {
	logger := klog.FromContext(ctx).WithValues("deployment", deployment, "node", node)

	patch, err := nodeAffinityPatch(node)
	if err != nil {
		return fmt.Errorf("failed to build node affinity patch: %w", err)
	}

	if _, err := p.client.AppsV1().Deployments(p.namespace).Patch(ctx, deployment, types.StrategicMergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return fmt.Errorf("failed to patch node affinity of deployment %s/%s: %w", p.namespace, deployment, err)
	}
	logger.V(2).Info("patched deployment node affinity")

	pods, err := p.listPods(ctx, AppLabel, deployment)
	if err != nil {
		return err
	}
	for _, pod := range pods {
		if err := p.client.CoreV1().Pods(p.namespace).Delete(ctx, pod.Name, metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("failed to restart pod %s/%s: %w", p.namespace, pod.Name, err)
		}
		logger.V(4).Info("deleted pod for rescheduling", "pod", pod.Name)
	}
	return nil
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// WaitForReady implements Interface.
func (p *KubernetesProvider) WaitForReady(ctx context.Context, app string, timeout time.Duration) error {
	logger := klog.FromContext(ctx).WithValues("app", app)
	logger.V(4).Info("waiting for pod to become ready", "timeout", timeout)

	err := wait.PollUntilContextTimeout(ctx, p.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		pods, err := p.listPods(ctx, AppLabel, app)
		if err != nil {
			logger.V(4).Info("listing pods failed, retrying", "err", err)
			return false, nil
		}
		for i := range pods {
			if podReady(&pods[i]) {
				logger.V(2).Info("pod is ready", "pod", pods[i].Name)
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("pod of %s did not become ready within %s: %w", app, timeout, err)
	}
	return nil
}
