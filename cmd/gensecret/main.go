// gensecret prints a random hex string suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretLen = 32

func main() {
	size := pflag.IntP("bytes", "n", defaultSecretLen, "Number of random bytes")
	pflag.Parse()

	if err := generate(os.Stdout, rand.Reader, *size); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func generate(w io.Writer, source io.Reader, size int) error {
	if size < 16 {
		return fmt.Errorf("secret of %d bytes is too short, use at least 16", size)
	}

	b := make([]byte, size)
	if _, err := io.ReadFull(source, b); err != nil {
		return err
	}

	_, err := fmt.Fprintln(w, hex.EncodeToString(b))
	return err
}
