package k8ssecrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestWriteCreatesSecretWhenAbsent(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	w := NewClientsetWriterFor(clientset)
	ctx := context.Background()

	spec := ServiceTokenSpec{Namespace: "default", Name: "mobu-token", DataKey: "token", WireToken: "gt-abc.def"}
	require.NoError(t, w.Write(ctx, spec))

	secret, err := clientset.CoreV1().Secrets("default").Get(ctx, "mobu-token", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gt-abc.def", string(secret.Data["token"]))
}

func TestWriteUpdatesExistingSecret(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	w := NewClientsetWriterFor(clientset)
	ctx := context.Background()

	spec := ServiceTokenSpec{Namespace: "default", Name: "mobu-token", DataKey: "token", WireToken: "gt-abc.def"}
	require.NoError(t, w.Write(ctx, spec))

	spec.WireToken = "gt-xyz.rotated"
	require.NoError(t, w.Write(ctx, spec))

	secret, err := clientset.CoreV1().Secrets("default").Get(ctx, "mobu-token", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "gt-xyz.rotated", string(secret.Data["token"]))
}
