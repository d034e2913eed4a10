package domain_test

import (
	"testing"

	"datastory/testutil"
)

func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(
		testutil.InternalImportForbidden,
		testutil.TransportImportForbidden,
		testutil.StorageImportForbidden,
	), "pkg/domain is imported by every layer")
}
