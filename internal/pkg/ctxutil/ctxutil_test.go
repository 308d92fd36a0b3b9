package ctxutil

import (
	"context"
	"testing"
)

func TestPrincipalRoundTrip(t *testing.T) {
	if GetPrincipal(context.Background()) != nil {
		t.Fatalf("empty context should carry no principal")
	}
	ctx := WithPrincipal(context.Background(), &Principal{Subject: "svc", ProjectID: 3, OrganizationID: 4})
	p := GetPrincipal(ctx)
	if p == nil || p.ProjectID != 3 || p.OrganizationID != 4 {
		t.Fatalf("principal: got=%+v", p)
	}
}

func TestTraceRoundTrip(t *testing.T) {
	if _, ok := TraceFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no trace")
	}
	var unset context.Context
	ctx := WithTrace(unset, Trace{TraceID: "t1", RequestID: "r1"})
	tr, ok := TraceFrom(ctx)
	if !ok || tr.RequestID != "r1" || tr.TraceID != "t1" {
		t.Fatalf("trace: want=r1/t1 got=%+v ok=%v", tr, ok)
	}
}
