// Package kube builds the shared Kubernetes clients used by both
// binaries: the typed clientset for pod annotation reads/patches and
// the dynamic client for the EdgeService/TritonService custom
// resources. In-cluster config is tried first, falling back to
// KUBECONFIG for local runs against a dev cluster.
package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// RestConfig resolves a *rest.Config, preferring in-cluster
// credentials and falling back to the kubeconfig pointed to by
// KUBECONFIG, or ~/.kube/config otherwise.
func RestConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory for kubeconfig: %w", err)
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}

	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig %s: %w", kubeconfig, err)
	}
	return cfg, nil
}

// Clientset builds the typed client used for pod reads/patches.
func Clientset() (*kubernetes.Clientset, error) {
	cfg, err := RestConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(cfg)
}

// DynamicClient builds the dynamic client used for EdgeService and
// TritonService custom resource access.
func DynamicClient() (dynamic.Interface, error) {
	cfg, err := RestConfig()
	if err != nil {
		return nil, err
	}
	return dynamic.NewForConfig(cfg)
}
