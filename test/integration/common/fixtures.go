package common

// Workflow definitions shared by the end to end suites. Each one is a small
// release flow of the kind a platform team runs through the engine.

// ReleaseNoticeYAML completes in a single claim: it stamps a ticket variable,
// branches on the environment and announces on the matching channel. Only
// the selected branch's node is visited.
const ReleaseNoticeYAML = `
version: 1
name: release-notice
description: Announce a release on the right channel
trigger: manual
variables:
  - name: env
    type: string
    default: staging
nodes:
  - id: start
    type: trigger
  - id: stamp
    type: action
    data:
      operation: set_variable
      name: ticket
      value: "OPS-{{ trigger.tag }}"
  - id: check
    type: condition
    data:
      expression: 'variables.env == "prod"'
  - id: announceProd
    type: notification
    data:
      channel: slack
      target: "#releases"
      message: "release {{ trigger.tag }} is live ({{ variables.ticket }})"
  - id: announceTest
    type: notification
    data:
      channel: log
      target: releases
      message: "release {{ trigger.tag }} deployed to {{ variables.env }}"
edges:
  - source: start
    target: stamp
  - source: stamp
    target: check
  - source: check
    target: announceProd
    label: "true"
  - source: check
    target: announceTest
    label: "false"
`

// HoldReleaseYAML suspends on a delay node, so the run parks in the database
// until the release window opens.
const HoldReleaseYAML = `
version: 1
name: hold-release
description: Hold until the release window opens, then announce
trigger: manual
nodes:
  - id: start
    type: trigger
  - id: hold
    type: delay
    data:
      duration: "15 minutes"
  - id: announce
    type: notification
    data:
      channel: log
      target: releases
      message: "release window open"
edges:
  - source: start
    target: hold
  - source: hold
    target: announce
`

// GatedReleaseYAML suspends on an approval gate until an approver records a
// decision through the API.
const GatedReleaseYAML = `
version: 1
name: gated-release
description: Release gated on an operator approval
trigger: manual
nodes:
  - id: start
    type: trigger
  - id: gate
    type: approval
    data:
      approvers: ["release-bot", "dba-lead"]
      minApprovals: 1
      timeout: "24 hours"
      onTimeout: fail
  - id: announce
    type: notification
    data:
      channel: log
      target: releases
      message: "release approved by {{ nodes.gate.approvedBy }}"
edges:
  - source: start
    target: gate
  - source: gate
    target: announce
`
