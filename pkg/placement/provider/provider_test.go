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

package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kcp-dev/placement-optimizer/pkg/placement/topology"
)

const testNamespace = "default"

func pod(name string, lbls map[string]string, node string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, Labels: lbls},
		Spec:       corev1.PodSpec{NodeName: node},
		Status:     corev1.PodStatus{Phase: phase},
	}
	if ready {
		p.Status.Conditions = []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}}
	}
	return p
}

func node(name, ip string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{Addresses: []corev1.NodeAddress{
			{Type: corev1.NodeHostName, Address: name},
			{Type: corev1.NodeInternalIP, Address: ip},
		}},
	}
}

func TestGetPodMapping(t *testing.T) {
	tests := map[string]struct {
		objects  []runtime.Object
		services []string
		want     topology.PlacementMap
	}{
		"knative labelled pods": {
			objects: []runtime.Object{
				pod("s1-b", map[string]string{KnativeServiceLabel: "s1"}, "worker-2", corev1.PodRunning, true),
				pod("s1-a", map[string]string{KnativeServiceLabel: "s1"}, "worker-1", corev1.PodRunning, true),
			},
			services: []string{"s1"},
			want:     topology.PlacementMap{"s1": {"worker-1": {"s1-a"}, "worker-2": {"s1-b"}}},
		},
		"app label fallback": {
			objects: []runtime.Object{
				pod("s2-a", map[string]string{AppLabel: "s2"}, "worker-1", corev1.PodRunning, true),
				pod("s2-b", map[string]string{AppLabel: "s2"}, "worker-1", corev1.PodRunning, false),
			},
			services: []string{"s2"},
			want:     topology.PlacementMap{"s2": {"worker-1": {"s2-a", "s2-b"}}},
		},
		"pending and unscheduled pods ignored": {
			objects: []runtime.Object{
				pod("s3-a", map[string]string{AppLabel: "s3"}, "worker-1", corev1.PodPending, false),
				pod("s3-b", map[string]string{AppLabel: "s3"}, "", corev1.PodRunning, false),
				pod("s3-c", map[string]string{AppLabel: "s3"}, "worker-3", corev1.PodSucceeded, false),
			},
			services: []string{"s3"},
			want:     topology.PlacementMap{"s3": {}},
		},
		"service without pods is kept": {
			services: []string{"ghost"},
			want:     topology.PlacementMap{"ghost": {}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			p := NewKubernetesProvider(fake.NewSimpleClientset(tc.objects...), testNamespace)
			got, err := p.GetPodMapping(context.Background(), tc.services)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetInternalIPMappingAndNodes(t *testing.T) {
	client := fake.NewSimpleClientset(
		node("worker-2", "10.0.0.12"),
		node("worker-1", "10.0.0.11"),
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "no-ip"}},
	)
	p := NewKubernetesProvider(client, testNamespace)

	ips, err := p.GetInternalIPMapping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"worker-1": "10.0.0.11", "worker-2": "10.0.0.12"}, ips)

	nodes, err := p.GetNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"no-ip", "worker-1", "worker-2"}, nodes)
}

func TestCurrentNode(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("web-b", map[string]string{AppLabel: "web"}, "worker-2", corev1.PodRunning, true),
		pod("web-a", map[string]string{AppLabel: "web"}, "worker-1", corev1.PodRunning, true),
	)
	p := NewKubernetesProvider(client, testNamespace)

	got, err := p.CurrentNode(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got)

	got, err = p.CurrentNode(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaceOn(t *testing.T) {
	replicas := int32(1)
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: testNamespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{AppLabel: "web"}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{AppLabel: "web"}},
				Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "web", Image: "nginx"}}},
			},
		},
	}
	client := fake.NewSimpleClientset(
		deployment,
		pod("web-a", map[string]string{AppLabel: "web"}, "worker-1", corev1.PodRunning, true),
		pod("other", map[string]string{AppLabel: "other"}, "worker-1", corev1.PodRunning, true),
	)
	p := NewKubernetesProvider(client, testNamespace)

	require.NoError(t, p.PlaceOn(context.Background(), "web", "worker-3"))

	got, err := client.AppsV1().Deployments(testNamespace).Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, got.Spec.Template.Spec.Affinity)
	terms := got.Spec.Template.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms
	require.Len(t, terms, 1)
	assert.Equal(t, []corev1.NodeSelectorRequirement{{
		Key:      corev1.LabelHostname,
		Operator: corev1.NodeSelectorOpIn,
		Values:   []string{"worker-3"},
	}}, terms[0].MatchExpressions)
	assert.Len(t, got.Spec.Template.Spec.Containers, 1, "the patch must not drop containers")

	pods, err := client.CoreV1().Pods(testNamespace).List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, pods.Items, 1)
	assert.Equal(t, "other", pods.Items[0].Name)
}

func TestPlaceOnMissingDeployment(t *testing.T) {
	p := NewKubernetesProvider(fake.NewSimpleClientset(), testNamespace)
	err := p.PlaceOn(context.Background(), "missing", "worker-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to patch node affinity")
}

func TestWaitForReady(t *testing.T) {
	tests := map[string]struct {
		objects []runtime.Object
		wantErr bool
	}{
		"ready pod": {
			objects: []runtime.Object{pod("web-a", map[string]string{AppLabel: "web"}, "worker-1", corev1.PodRunning, true)},
		},
		"running but not ready": {
			objects: []runtime.Object{pod("web-a", map[string]string{AppLabel: "web"}, "worker-1", corev1.PodRunning, false)},
			wantErr: true,
		},
		"no pods": {
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			p := NewKubernetesProvider(fake.NewSimpleClientset(tc.objects...), testNamespace).
				WithPollInterval(10 * time.Millisecond)
			err := p.WaitForReady(context.Background(), "web", 50*time.Millisecond)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
