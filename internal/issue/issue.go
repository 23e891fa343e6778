// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	RunnableNotFoundId
	InvalidIsolationModeId
	WorkerLaunchFailedId
	ContainerEngineNotFoundId
	ImageNotFoundId
	WorkerDisconnectedId
	ProtocolViolationId
	ExecutionCancelledId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Print the configuration location:
~~~
$ bricks config path
~~~
- Write a fresh file with the defaults and compare:
~~~
$ bricks config init
~~~
- Check the values of the ` + "`isolation`" + ` and ` + "`container.windows_isolation`" + ` fields
- Remove ` + "`BRICKS_*`" + ` environment variables that override the file`,
	}

	runnableNotFoundIssue = &Issue{
		id: RunnableNotFoundId,
		mdMsg: `
# Runnable not found!

No installed runnable has the requested ID.

## Things you can try:
- List the installed runnables:
~~~
$ bricks list
~~~
- Declare a script runnable in your configuration:
~~~cue
runnables: [
  {
    id:     "greet.world"
    name:   "Greet"
    script: "echo hello world"
  },
]
~~~`,
	}

	invalidIsolationModeIssue = &Issue{
		id: InvalidIsolationModeId,
		mdMsg: `
# Invalid isolation mode!

The isolation mode is not one of the supported values.

## Supported modes:
- ` + "`in-process`" + `: runs the runnable in the host process
- ` + "`anonymous-pipes`" + `: runs it in a child process connected by pipes
- ` + "`docker`" + `: runs it in a Linux container
- ` + "`windows-container`" + `: runs it in a Windows container

## Things you can try:
~~~
$ bricks mode
$ bricks run demo.hello --isolation anonymous-pipes
~~~`,
	}

	workerLaunchFailedIssue = &Issue{
		id: WorkerLaunchFailedId,
		mdMsg: `
# The worker could not be started!

A separate worker was needed to run the runnable in isolation, but it could
not be created. Nothing was executed.

## Things you can try:
- Run with ` + "`--verbose`" + ` to see the full error chain
- Set ` + "`worker.executable`" + ` if the bricks binary was moved after start
- Try a lighter isolation mode, e.g. ` + "`--isolation in-process`",
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not reachable!

The container isolation modes need a running Docker daemon.

## Things you can try:
- Check that the daemon is running:
~~~
$ docker info
~~~
- Point bricks at another daemon with ` + "`container.host`" + ` or ` + "`DOCKER_HOST`" + `
- Use ` + "`--isolation anonymous-pipes`" + ` for process isolation without containers`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/"},
	}

	imageNotFoundIssue = &Issue{
		id: ImageNotFoundId,
		mdMsg: `
# Container image not found!

The worker image is not available in the local image store. bricks never
pulls images on its own.

## Things you can try:
- Pull the configured image:
~~~
$ docker pull debian:stable-slim
~~~
- Configure another image with ` + "`container.image`" + ` (or ` + "`container.windows_image`" + `)`,
	}

	workerDisconnectedIssue = &Issue{
		id: WorkerDisconnectedId,
		mdMsg: `
# Lost connection to the worker!

The worker stopped talking before the runnable finished. It may have crashed,
been killed, or run out of memory. Output received so far was kept.

## Things you can try:
- Run again with ` + "`--verbose`" + ` to see the worker's exit code
- Set ` + "`BRICKS_WORKER_DEBUG=1`" + ` to get debug logs from the worker`,
	}

	protocolViolationIssue = &Issue{
		id: ProtocolViolationId,
		mdMsg: `
# The worker broke the protocol!

The worker sent a malformed or unexpected message. This usually means that
the worker binary and the host are different bricks versions, or that
something else wrote to the worker's output.

## Things you can try:
- Make sure ` + "`worker.executable`" + ` points to the same bricks build
- For containers, disable ` + "`container.mount_executable`" + ` only if the image ships a matching binary`,
	}

	executionCancelledIssue = &Issue{
		id: ExecutionCancelledId,
		mdMsg: `
# Execution cancelled!

The run was interrupted before the runnable finished. The worker was asked to
stop and killed if it did not exit within the grace period.

## Things you can try:
- Raise ` + "`grace_period`" + ` if runnables need more time to clean up`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		runnableNotFoundIssue.Id():        runnableNotFoundIssue,
		invalidIsolationModeIssue.Id():    invalidIsolationModeIssue,
		workerLaunchFailedIssue.Id():      workerLaunchFailedIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		imageNotFoundIssue.Id():           imageNotFoundIssue,
		workerDisconnectedIssue.Id():      workerDisconnectedIssue,
		protocolViolationIssue.Id():       protocolViolationIssue,
		executionCancelledIssue.Id():      executionCancelledIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
