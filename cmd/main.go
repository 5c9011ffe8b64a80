package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"ratefeed/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.WithError(err).Error("Application exited with error")
		os.Exit(1)
	}
}
