// Command enclaverun loads a runtime shim and a guest payload into a
// hardware enclave and runs the payload, proxying its syscalls back to
// the host.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/criyle/go-enclave/backend/sgx"
	"github.com/criyle/go-enclave/backend/sgx/enclave"
	"github.com/criyle/go-enclave/pkg/image"
	"github.com/criyle/go-enclave/pkg/memfd"
	"github.com/criyle/go-enclave/runner"
)

var (
	shimPath, codePath, confPath string
	probeOnly, showDetails       bool
	allow                        arrayFlags
)

func main() {
	flag.StringVar(&shimPath, "shim", "", "Set the runtime shim image")
	flag.StringVar(&codePath, "code", "", "Set the guest payload image")
	flag.StringVar(&confPath, "conf", "", "Set the config file (toml)")
	flag.BoolVar(&probeOnly, "probe", false, "Print backend capability data and exit")
	flag.BoolVar(&showDetails, "debug", false, "Show detailed logs")
	flag.Var(&allow, "allow", "Allow an extra proxied syscall (repeatable)")
	flag.Parse()

	conf, err := loadConfig(confPath)
	if err != nil {
		fatal(err)
	}
	if conf.Debug || showDetails {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if conf.Device != "" {
		enclave.DevicePath = conf.Device
	}

	b := &sgx.Backend{}

	if probeOnly {
		for _, d := range b.Data() {
			mark := "fail"
			if d.Pass {
				mark = "pass"
			}
			fmt.Printf("%s: %s %s\n", mark, d.Name, d.Info)
		}
		return
	}

	if shimPath == "" || codePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !b.Have() {
		fatal(fmt.Errorf("backend %s not available on this host", b.Name()))
	}

	shim, err := loadImage(shimPath)
	if err != nil {
		fatal(err)
	}
	b.ShimImage = shim.Bytes
	code, err := loadImage(codePath)
	if err != nil {
		fatal(err)
	}

	keep, err := b.Build(shim, code)
	if err != nil {
		fatal(err)
	}
	thread, err := keep.Spawn()
	if err != nil {
		fatal(err)
	}
	if thread == nil {
		fatal(fmt.Errorf("no thread slot in keep"))
	}

	policy, err := runner.NewPolicy(append(append([]string{}, runner.DefaultAllow...), append(conf.Allow, allow...)...))
	if err != nil {
		fatal(err)
	}

	r := runner.Runner{Thread: thread, Policy: policy}
	result := r.Run(context.Background())
	logrus.Info(result)

	switch result.Status {
	case runner.StatusNormal, runner.StatusNonzeroExitStatus:
		os.Exit(result.ExitStatus)
	case runner.StatusDisallowedSyscall:
		fatal(fmt.Errorf("guest used disallowed syscall %s", result.Error))
	default:
		fatal(fmt.Errorf("%s", result.Error))
	}
}

// loadImage seals the file into a read-only memfd before parsing, so
// the bytes fed to translation cannot change underneath
func loadImage(path string) (*image.Component, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sealed, err := memfd.DupToMemfd(path, f)
	if err != nil {
		return nil, err
	}
	defer sealed.Close()

	b, err := io.ReadAll(sealed)
	if err != nil {
		return nil, err
	}
	return image.LoadELF(b)
}

func fatal(err error) {
	logrus.Fatal(err)
}
