//go:build !unix

package cli

func notifyQuiet(func()) stopFunc { return func() {} }
