//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrettyPrint writes data to w as indented JSON followed by a newline.
func PrettyPrint(w io.Writer, data interface{}) error {
	p, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("pretty print: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", p)
	return err
}
