package main

import "github.com/odhiambocuttice/instagram-audio-downloader/cmd"

func main() {
	cmd.Execute()
}
