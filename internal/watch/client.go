package watch

import (
	"fmt"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// Cluster is a connected clientset and the kubeconfig context it came from.
type Cluster struct {
	Context   string
	Clientset kubernetes.Interface
}

// Connect loads kubeconfig with the standard loading rules. An empty path or
// context falls back to the defaults (KUBECONFIG, ~/.kube/config, current
// context).
func Connect(kubeconfigPath, contextName string) (*Cluster, error) {
	loader := clientcmd.NewDefaultClientConfigLoadingRules()
	if p := strings.TrimSpace(kubeconfigPath); p != "" {
		loader.ExplicitPath = p
	}
	overrides := &clientcmd.ConfigOverrides{}
	if c := strings.TrimSpace(contextName); c != "" {
		overrides.CurrentContext = c
	}

	cfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, overrides)
	rawCfg, err := cfg.RawConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	restCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build client config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kubernetes clientset: %w", err)
	}

	effective := strings.TrimSpace(overrides.CurrentContext)
	if effective == "" {
		effective = rawCfg.CurrentContext
	}
	return &Cluster{Context: effective, Clientset: clientset}, nil
}
