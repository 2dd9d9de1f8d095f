package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	v1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
)

const defaultConfigMapHostsfileKey = "hosts"

type ConfigMapHostsfilePersister struct {
	namespace       string
	name            string
	key             string
	configMapClient v1.ConfigMapInterface
	mustExist       bool
}

// NewConfigMapHostsfilePersister connects with the in-cluster service account.
func NewConfigMapHostsfilePersister(namespace, name, key string) (*ConfigMapHostsfilePersister, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, errors.Wrap(err, "creating in-cluster config")
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating Kubernetes client")
	}

	return newConfigMapHostsfilePersister(clientset, namespace, name, key), nil
}

func newConfigMapHostsfilePersister(clientset kubernetes.Interface, namespace, name, key string) *ConfigMapHostsfilePersister {
	if key == "" {
		key = defaultConfigMapHostsfileKey
	}
	return &ConfigMapHostsfilePersister{
		namespace:       namespace,
		name:            name,
		key:             key,
		configMapClient: clientset.CoreV1().ConfigMaps(namespace),
	}
}

// Read returns an empty file when the ConfigMap or its key does not exist
// yet. With mustExist set, a missing ConfigMap is an error.
func (p *ConfigMapHostsfilePersister) Read() (string, error) {
	cm, err := p.configMapClient.Get(context.Background(), p.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) && !p.mustExist {
		log.Warn().Str("configmap", p.Location()).Msg("ConfigMap does not exist, starting empty")
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "error reading ConfigMap %s/%s", p.namespace, p.name)
	}

	contents, ok := cm.Data[p.key]
	if !ok {
		log.Warn().
			Str("configmap", p.Location()).
			Str("key", p.key).
			Msg("ConfigMap has no hosts key, starting empty")
		return "", nil
	}

	return contents, nil
}

// Write replaces the hosts key, keeping any other keys of the ConfigMap.
func (p *ConfigMapHostsfilePersister) Write(contents string) error {
	ctx := context.Background()

	cm, err := p.configMapClient.Get(ctx, p.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      p.name,
				Namespace: p.namespace,
			},
			Data: map[string]string{
				p.key: contents,
			},
		}
		if _, err := p.configMapClient.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return errors.Wrapf(err, "couldn't create ConfigMap %s/%s", p.namespace, p.name)
		}
		log.Info().Str("configmap", p.Location()).Msg("created ConfigMap")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "error reading ConfigMap %s/%s before update", p.namespace, p.name)
	}

	cm = cm.DeepCopy()
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[p.key] = contents

	if _, err := p.configMapClient.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return errors.Wrapf(err, "couldn't update ConfigMap %s/%s", p.namespace, p.name)
	}
	return nil
}

func (p *ConfigMapHostsfilePersister) Location() string {
	return fmt.Sprintf("configmap %s/%s", p.namespace, p.name)
}
