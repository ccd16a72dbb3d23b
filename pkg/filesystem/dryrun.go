package filesystem

import (
	"github.com/spf13/afero"

	"github.com/YunHsiao/crysknife/pkg/types"
)

// NewDryRun wraps the live filesystem in a copy-on-write overlay.
// Reads fall through to the real tree; every write lands in an
// in-memory layer, so a dry run sees exactly the state a real run
// would produce without mutating a single live file.
func NewDryRun() types.FS {
	base := afero.NewReadOnlyFs(afero.NewOsFs())
	return NewAferoFS(afero.NewCopyOnWriteFs(base, afero.NewMemMapFs()))
}
