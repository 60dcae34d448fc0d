package export

import "errors"

// ErrOutputExists is returned when the output directory of a single stack
// export already exists. Refusing to reuse it keeps a conversion from
// silently mixing with stale results.
var ErrOutputExists = errors.New("export: output directory already exists")
