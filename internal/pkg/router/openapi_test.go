package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apiv1 "github.com/ManuelReschke/FoxPay/internal/api/v1"
)

func TestDocumentedOperationsAreMounted(t *testing.T) {
	a := newTestApp(t)

	doc, err := apiv1.LoadDocument(context.Background(), "../../../"+apiv1.DocumentPath)
	require.NoError(t, err)

	mounted := map[apiv1.Operation]bool{}
	for _, r := range a.app.GetRoutes(true) {
		mounted[apiv1.Operation{Method: r.Method, Path: r.Path}] = true
	}

	for _, op := range apiv1.Operations(doc) {
		if !mounted[op] {
			t.Fatalf("documented operation %s %s is not mounted", op.Method, op.Path)
		}
	}
}
