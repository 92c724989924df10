// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package permission lists the rights a user device can be granted
package permission

// Permission names a right checked by master-side handlers
type Permission string

const (
	AddOdroid             Permission = "ADD_ODROID"
	RenameOdroid          Permission = "RENAME_ODROID"
	DeleteOdroid          Permission = "DELETE_ODROID"
	AddModule             Permission = "ADD_MODULE"
	RenameModule          Permission = "RENAME_MODULE"
	DeleteModule          Permission = "DELETE_MODULE"
	RequestLightStatus    Permission = "REQUEST_LIGHT_STATUS"
	RequestWindowStatus   Permission = "REQUEST_WINDOW_STATUS"
	RequestDoorStatus     Permission = "REQUEST_DOOR_STATUS"
	LockDoor              Permission = "LOCK_DOOR"
	UnlatchDoor           Permission = "UNLATCH_DOOR"
	UnlatchDoorOnHoliday  Permission = "UNLATCH_DOOR_ON_HOLIDAY"
	RequestCameraStatus   Permission = "REQUEST_CAMERA_STATUS"
	TakeCameraPicture     Permission = "TAKE_CAMERA_PICTURE"
	RequestWeatherStatus  Permission = "REQUEST_WEATHER_STATUS"
	ToggleHolidaySim      Permission = "TOGGLE_HOLIDAY_SIMULATION"
	AddUser               Permission = "ADD_USER"
	DeleteUser            Permission = "DELETE_USER"
	ChangeUserName        Permission = "CHANGE_USER_NAME"
	ChangeUserGroup       Permission = "CHANGE_USER_GROUP"
	ModifyUserPermission  Permission = "MODIFY_USER_PERMISSION"
	AddGroup              Permission = "ADD_GROUP"
	DeleteGroup           Permission = "DELETE_GROUP"
	ChangeGroupName       Permission = "CHANGE_GROUP_NAME"
	ShowGroupMember       Permission = "SHOW_GROUP_MEMBER"
	ChangeGroupTemplate   Permission = "CHANGE_GROUP_TEMPLATE"
	HumidityWarning       Permission = "HUMIDITY_WARNING"
	BrightnessWarning     Permission = "BRIGHTNESS_WARNING"
	HolidayModeSwitchedOn Permission = "HOLIDAY_MODE_SWITCHED_ON"
	HolidayModeSwitchedOf Permission = "HOLIDAY_MODE_SWITCHED_OFF"
	SystemHealthWarning   Permission = "SYSTEM_HEALTH_WARNING"
	BellRang              Permission = "BELL_RANG"
	WeatherWarning        Permission = "WEATHER_WARNING"
	DoorUnlatched         Permission = "DOOR_UNLATCHED"
	DoorLocked            Permission = "DOOR_LOCKED"
	DoorUnlocked          Permission = "DOOR_UNLOCKED"
	SwitchLightExtern     Permission = "SWITCH_LIGHT_EXTERN"
	// SwitchLight is granted per light module
	SwitchLight Permission = "SWITCH_LIGHT"
)

var all = []Permission{
	AddOdroid, RenameOdroid, DeleteOdroid, AddModule, RenameModule, DeleteModule,
	RequestLightStatus, RequestWindowStatus, RequestDoorStatus, LockDoor, UnlatchDoor,
	UnlatchDoorOnHoliday, RequestCameraStatus, TakeCameraPicture, RequestWeatherStatus,
	ToggleHolidaySim, AddUser, DeleteUser, ChangeUserName, ChangeUserGroup,
	ModifyUserPermission, AddGroup, DeleteGroup, ChangeGroupName, ShowGroupMember,
	ChangeGroupTemplate, HumidityWarning, BrightnessWarning, HolidayModeSwitchedOn,
	HolidayModeSwitchedOf, SystemHealthWarning, BellRang, WeatherWarning, DoorUnlatched,
	DoorLocked, DoorUnlocked, SwitchLightExtern, SwitchLight,
}

// All returns every known permission
func All() []Permission {
	out := make([]Permission, len(all))
	copy(out, all)
	return out
}

// IsModuleBound reports whether p is granted per module rather than globally
func (p Permission) IsModuleBound() bool {
	return p == SwitchLight
}

// Valid reports whether p is a known permission
func (p Permission) Valid() bool {
	for _, known := range all {
		if known == p {
			return true
		}
	}
	return false
}

func (p Permission) String() string {
	return string(p)
}
